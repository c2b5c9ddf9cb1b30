package aa

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"farecraft/token"
	"farecraft/utils"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// BrowserConfig tunes the headless Chrome used to earn trust cookies.
type BrowserConfig struct {
	Headless     bool
	ExecPath     string
	UserAgent    string
	WarmupURL    string
	CookieDomain string
	WindowWidth  int
	WindowHeight int
	NavTimeout   time.Duration
}

// BrowserSource is a token.Source backed by chromedp.
type BrowserSource struct {
	cfg    BrowserConfig
	logger *utils.Logger
}

type browserHandle struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewBrowserSource creates a new BrowserSource
func NewBrowserSource(cfg BrowserConfig, logger *utils.Logger) *BrowserSource {
	if cfg.WindowWidth == 0 {
		cfg.WindowWidth, cfg.WindowHeight = 1280, 900
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}
	return &BrowserSource{cfg: cfg, logger: logger}
}

// Open launches a fresh browser (one browser, one tab) and loads the warm-up page
// that makes the bot manager issue its cookies.
func (s *BrowserSource) Open(ctx context.Context, scopeKey string) (token.Handle, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("log-level", "3"), // suppress Chrome logs
		chromedp.WindowSize(s.cfg.WindowWidth, s.cfg.WindowHeight),
	)
	if s.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(s.cfg.UserAgent))
	}
	if s.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(s.cfg.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	h := &browserHandle{
		ctx: browserCtx,
		cancel: func() {
			cancelCtx()
			cancelAlloc()
		},
	}

	// Allocate on the long-lived context; a timeout context on the first Run would
	// take the whole browser down when it expires.
	if err := chromedp.Run(browserCtx); err != nil {
		h.cancel()
		return nil, fmt.Errorf("browser start failed: %w", err)
	}

	navCtx, cancelNav := s.bind(ctx, h, s.cfg.NavTimeout)
	defer cancelNav()

	s.logger.Debug("Loading warm-up page for %s: %s", scopeKey, s.cfg.WarmupURL)
	err := chromedp.Run(navCtx,
		chromedp.Navigate(s.cfg.WarmupURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
	if err != nil {
		h.cancel()
		return nil, fmt.Errorf("warm-up navigation failed: %w", err)
	}
	return h, nil
}

// Observe returns the browser's current cookies for the booking domain
func (s *BrowserSource) Observe(ctx context.Context, handle token.Handle) (map[string]string, error) {
	h, err := asBrowser(handle)
	if err != nil {
		return nil, err
	}
	runCtx, cancel := s.bind(ctx, h, 0)
	defer cancel()

	var cookies []*network.Cookie
	err = chromedp.Run(runCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("reading cookies: %w", err)
	}

	values := make(map[string]string, len(cookies))
	for _, c := range cookies {
		if s.cfg.CookieDomain != "" && !strings.HasSuffix(strings.TrimPrefix(c.Domain, "."), s.cfg.CookieDomain) {
			continue
		}
		values[c.Name] = c.Value
	}
	return values, nil
}

// SimulateInteraction moves the pointer and scrolls with small random pauses so the
// sensor's behavioural checks see something other than a frozen page.
func (s *BrowserSource) SimulateInteraction(ctx context.Context, handle token.Handle) error {
	h, err := asBrowser(handle)
	if err != nil {
		return err
	}
	runCtx, cancel := s.bind(ctx, h, 0)
	defer cancel()

	x, y := 80+rand.Float64()*60, 80+rand.Float64()*60
	var actions []chromedp.Action
	for i := 0; i < 4; i++ {
		x += 40 + rand.Float64()*120
		y += 20 + rand.Float64()*80
		actions = append(actions,
			chromedp.MouseEvent(input.MouseMoved, x, y),
			chromedp.Sleep(pause(250, 700)),
		)
	}
	actions = append(actions,
		chromedp.Evaluate(fmt.Sprintf(`window.scrollTo(0, %d)`, 300+rand.Intn(400)), nil),
		chromedp.Sleep(pause(1200, 2500)),
		chromedp.Evaluate(`window.scrollBy(0, -120)`, nil),
		chromedp.Sleep(pause(300, 800)),
	)

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return fmt.Errorf("interaction failed: %w", err)
	}
	return nil
}

// Close shuts the browser down
func (s *BrowserSource) Close(handle token.Handle) error {
	h, err := asBrowser(handle)
	if err != nil {
		return err
	}
	h.cancel()
	return nil
}

// bind derives a context from the browser context that also ends with ctx.
func (s *BrowserSource) bind(ctx context.Context, h *browserHandle, timeout time.Duration) (context.Context, context.CancelFunc) {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(h.ctx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(h.ctx)
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func asBrowser(handle token.Handle) (*browserHandle, error) {
	h, ok := handle.(*browserHandle)
	if !ok || h == nil {
		return nil, fmt.Errorf("not a browser handle: %T", handle)
	}
	return h, nil
}

func pause(minMs, maxMs int) time.Duration {
	return time.Duration(minMs+rand.Intn(maxMs-minMs)) * time.Millisecond
}
