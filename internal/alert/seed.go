package alert

import "time"

// DemoFeed returns the bootstrap set shown on first launch: one alert per
// intensity, newest first, the oldest already read.
func DemoFeed(now time.Time) Feed {
	return Feed{
		{
			ID:          "1",
			Title:       "Urgent: Wildfire Detected",
			Description: "A wildfire has been detected near your area. Please stay alert.",
			Location:    "North Ridge, 3.2 miles from your location",
			Intensity:   IntensityHigh,
			Timestamp:   now.Add(-30 * time.Minute),
			SafetyTips: []string{
				"Stay indoors and close all windows",
				"Monitor local news for evacuation notices",
				"Prepare emergency supplies",
				"Keep pets indoors",
			},
		},
		{
			ID:          "2",
			Title:       "Fire Alert: Containment Update",
			Description: "The fire department is working to contain a fire in the downtown area.",
			Location:    "Downtown District, 5.7 miles from your location",
			Intensity:   IntensityMedium,
			Timestamp:   now.Add(-2 * time.Hour),
			SafetyTips: []string{
				"Avoid downtown area if possible",
				"Follow detour instructions",
				"Keep windows closed to avoid smoke",
			},
		},
		{
			ID:          "3",
			Title:       "Controlled Burn Notice",
			Description: "A controlled burn is scheduled in the forest preserve.",
			Location:    "West Forest Preserve, 8.1 miles from your location",
			Intensity:   IntensityLow,
			Timestamp:   now.Add(-24 * time.Hour),
			Read:        true,
			SafetyTips: []string{
				"No action needed",
				"This is a planned fire management activity",
			},
		},
	}
}
