// Package console is the interactive terminal surface: a line-oriented REPL
// over the feed that also answers permission prompts.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"blazealert/internal/alert"
	"blazealert/internal/permission"
	logx "blazealert/pkg/logx"
)

// ErrQuit is returned by Run when the user asks to leave.
var ErrQuit = errors.New("console: quit")

// Feed is what the console drives.
type Feed interface {
	Snapshot() alert.Feed
	UnreadCount() int
	Get(id string) (alert.Alert, bool)
	MarkAsRead(ctx context.Context, id string) bool
	MarkAllAsRead(ctx context.Context) int
	ClearAll(ctx context.Context) int
	PermissionStatus() permission.State
	RequestConsent(ctx context.Context) (permission.State, error)
}

type command struct {
	name    string
	usage   string
	desc    string
	aliases []string
	run     func(ctx context.Context, args []string) error
}

type Console struct {
	feed Feed
	in   io.Reader
	out  io.Writer
	log  logx.Logger
	now  func() time.Time

	cmds  map[string]*command
	alias map[string]*command

	outMu sync.Mutex

	mu      sync.Mutex
	pending chan string
	eof     bool

	wg sync.WaitGroup
}

func New(feed Feed, in io.Reader, out io.Writer, log logx.Logger) *Console {
	if log.IsZero() {
		log = logx.Nop()
	}
	c := &Console{
		feed:  feed,
		in:    in,
		out:   out,
		log:   log,
		now:   time.Now,
		cmds:  map[string]*command{},
		alias: map[string]*command{},
	}
	c.register()
	return c
}

func (c *Console) register() {
	for _, cmd := range []*command{
		{name: "list", usage: "list [--unread] [--intensity=high|medium|low]", desc: "show the feed, newest first", aliases: []string{"ls"}, run: c.cmdList},
		{name: "show", usage: "show <id|#n>", desc: "show one alert with its safety tips", run: c.cmdShow},
		{name: "unread", usage: "unread", desc: "print the unread count", run: c.cmdUnread},
		{name: "read", usage: "read <id|#n>", desc: "mark one alert as read", run: c.cmdRead},
		{name: "read-all", usage: "read-all", desc: "mark every alert as read", run: c.cmdReadAll},
		{name: "clear", usage: "clear", desc: "remove every alert", run: c.cmdClear},
		{name: "consent", usage: "consent", desc: "ask for push notification permission", run: c.cmdConsent},
		{name: "status", usage: "status", desc: "feed size, unread count and permission", run: c.cmdStatus},
		{name: "help", usage: "help [command]", desc: "list commands", aliases: []string{"?"}, run: c.cmdHelp},
		{name: "quit", usage: "quit", desc: "stop the service", aliases: []string{"exit"}, run: func(context.Context, []string) error { return ErrQuit }},
	} {
		c.cmds[cmd.name] = cmd
		for _, a := range cmd.aliases {
			c.alias[a] = cmd
		}
	}
}

// Prompt implements permission.Prompter: the next input line answers it.
func (c *Console) Prompt(ctx context.Context) (bool, error) {
	ch := make(chan string, 1)
	c.mu.Lock()
	if c.eof {
		c.mu.Unlock()
		return false, permission.ErrDismissed
	}
	if c.pending != nil {
		c.mu.Unlock()
		return false, errors.New("a prompt is already pending")
	}
	c.pending = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		if c.pending == ch {
			c.pending = nil
		}
		c.mu.Unlock()
	}()

	c.printf("%s", permission.Question)
	select {
	case <-ctx.Done():
		c.printf("\n")
		return false, ctx.Err()
	case line, ok := <-ch:
		if !ok {
			return false, permission.ErrDismissed
		}
		return permission.IsYes(line), nil
	}
}

// answer routes line to a pending prompt, if any.
func (c *Console) answer(line string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return false
	}
	c.pending <- line
	c.pending = nil
	return true
}

func (c *Console) endInput() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eof = true
	if c.pending != nil {
		close(c.pending)
		c.pending = nil
	}
}

// Run reads commands until ctx ends, input ends (nil) or the user quits (ErrQuit).
func (c *Console) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := sc.Err(); err != nil {
			c.log.Warn("console input error", logx.Err(err))
		}
	}()
	defer c.wg.Wait()

	c.printf("Blaze Alert console. Type \"help\" for commands.\n")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				c.endInput()
				c.log.Debug("console input closed")
				return nil
			}
			if c.answer(line) {
				continue
			}
			if err := c.Exec(ctx, line); errors.Is(err, ErrQuit) {
				return ErrQuit
			}
		}
	}
}

// Exec runs one command line. Command errors are printed, and only ErrQuit
// is returned.
func (c *Console) Exec(ctx context.Context, line string) error {
	args := tokenize(line)
	if len(args) == 0 {
		return nil
	}
	name := strings.ToLower(args[0])
	cmd, ok := c.cmds[name]
	if !ok {
		cmd, ok = c.alias[name]
	}
	if !ok {
		c.printf("unknown command %q, try \"help\"\n", args[0])
		return nil
	}
	err := cmd.run(ctx, args[1:])
	if errors.Is(err, ErrQuit) {
		return ErrQuit
	}
	if err != nil {
		c.printf("%s: %v\n", cmd.name, err)
	}
	return nil
}

func (c *Console) printf(format string, args ...any) {
	if c.out == nil {
		return
	}
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// resolve accepts an alert id or a 1-based "#n" position in the current feed.
func (c *Console) resolve(ref string) (string, error) {
	if strings.HasPrefix(ref, "#") {
		n, err := strconv.Atoi(ref[1:])
		if err != nil || n < 1 {
			return "", fmt.Errorf("bad position %q", ref)
		}
		f := c.feed.Snapshot()
		if n > f.Len() {
			return "", fmt.Errorf("no alert at %s (feed has %d)", ref, f.Len())
		}
		return f[n-1].ID, nil
	}
	if _, ok := c.feed.Get(ref); !ok {
		return "", fmt.Errorf("no alert with id %q", ref)
	}
	return ref, nil
}

func (c *Console) cmdList(_ context.Context, args []string) error {
	_, flags, bools := splitFlags(args)
	var in alert.Intensity
	if v, ok := flags["intensity"]; ok {
		var err error
		if in, err = alert.ParseIntensity(v); err != nil {
			return err
		}
	}
	f := c.feed.Snapshot()
	now := c.now()
	shown := 0
	for i, a := range f {
		if (bools["unread"] && a.Read) || (in != "" && a.Intensity != in) {
			continue
		}
		c.printf("%2d %s\n", i+1, a.Summary(now))
		shown++
	}
	if shown == 0 {
		c.printf("No notifications.\n")
	}
	return nil
}

func (c *Console) cmdShow(_ context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: show <id|#n>")
	}
	id, err := c.resolve(args[0])
	if err != nil {
		return err
	}
	a, _ := c.feed.Get(id)
	c.printf("%s [%s]\n%s\n%s | %s\n", a.Title, a.Intensity.Label(), a.Description, a.Location, alert.FormatAge(a.Timestamp, c.now()))
	if len(a.SafetyTips) > 0 {
		c.printf("Safety tips:\n")
		for _, tip := range a.SafetyTips {
			c.printf("  - %s\n", tip)
		}
	}
	return nil
}

func (c *Console) cmdUnread(context.Context, []string) error {
	c.printf("%d unread\n", c.feed.UnreadCount())
	return nil
}

func (c *Console) cmdRead(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: read <id|#n>")
	}
	id, err := c.resolve(args[0])
	if err != nil {
		return err
	}
	if c.feed.MarkAsRead(ctx, id) {
		c.printf("marked %s as read, %d unread\n", id, c.feed.UnreadCount())
	} else {
		c.printf("%s was already read\n", id)
	}
	return nil
}

func (c *Console) cmdReadAll(ctx context.Context, _ []string) error {
	c.printf("marked %d as read\n", c.feed.MarkAllAsRead(ctx))
	return nil
}

func (c *Console) cmdClear(ctx context.Context, _ []string) error {
	c.printf("cleared %d notifications\n", c.feed.ClearAll(ctx))
	return nil
}

// cmdConsent runs in the background so the read loop stays free to answer the prompt.
func (c *Console) cmdConsent(ctx context.Context, _ []string) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		st, err := c.feed.RequestConsent(ctx)
		if err != nil && !errors.Is(err, permission.ErrUnsupported) {
			c.log.Debug("consent request ended", logx.Err(err))
		}
		c.printf("permission: %s\n", st)
	}()
	return nil
}

func (c *Console) cmdStatus(context.Context, []string) error {
	c.printf("alerts: %d  unread: %d  permission: %s\n", c.feed.Snapshot().Len(), c.feed.UnreadCount(), c.feed.PermissionStatus())
	return nil
}

func (c *Console) cmdHelp(_ context.Context, args []string) error {
	if len(args) > 0 {
		name := strings.ToLower(args[0])
		cmd, ok := c.cmds[name]
		if !ok {
			cmd, ok = c.alias[name]
		}
		if !ok {
			return fmt.Errorf("unknown command %q", args[0])
		}
		c.printf("%s\n  %s\n", cmd.usage, cmd.desc)
		if len(cmd.aliases) > 0 {
			c.printf("  aliases: %s\n", strings.Join(cmd.aliases, ", "))
		}
		return nil
	}
	names := make([]string, 0, len(c.cmds))
	for n := range c.cmds {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		cmd := c.cmds[n]
		c.printf("  %-16s %s\n", cmd.usage, cmd.desc)
	}
	return nil
}
