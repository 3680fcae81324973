// Package live serves a page definition over HTTP and keeps it interactive
// through a websocket: every connection is one page session whose renders are
// pushed to the browser as they happen.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/websocket"

	"github.com/dotcommander/pagekit/internal/htmldom"
	"github.com/dotcommander/pagekit/internal/pagefile"
	"github.com/dotcommander/pagekit/pkg/page"
)

const (
	maxFramesPerSecond     = 40
	maxDecodeErrorsPerConn = 3

	// RootMarker tags the root element in served documents so the client can
	// find it again after every swap.
	RootMarker = "data-pagekit-root"
)

// Frame types.
const (
	FrameCommand  = "command"
	FrameReload   = "reload"
	FrameRender   = "render"
	FrameResult   = "result"
	FrameRedirect = "redirect"
	FrameError    = "error"
)

// Frame is one websocket message in either direction.
type Frame struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
	Command   string `json:"command,omitempty"`
	Args      []any  `json:"args,omitempty"`

	Seq      uint64 `json:"seq,omitempty"`
	Trigger  string `json:"trigger,omitempty"`
	InFlight string `json:"in_flight,omitempty"`
	HTML     string `json:"html,omitempty"`
	Value    any    `json:"value,omitempty"`
	URL      string `json:"url,omitempty"`
	Code     string `json:"code,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Options configures a Server.
type Options struct {
	Logger *slog.Logger
	// Observers are added to every page session the server starts.
	Observers []func(page.RenderInfo)
}

// WithLogger sets the logger for the server and the pages it starts.
func WithLogger(l *slog.Logger) func(*Options) {
	return func(o *Options) { o.Logger = l }
}

// WithRenderObserver adds fn to every page session the server starts.
func WithRenderObserver(fn func(page.RenderInfo)) func(*Options) {
	return func(o *Options) { o.Observers = append(o.Observers, fn) }
}

// Server serves one page definition.
type Server struct {
	def  *pagefile.Definition
	env  pagefile.Env
	opts Options
}

// NewServer returns a Server for def. Each document request and websocket
// connection builds its own page from def and env.
func NewServer(def *pagefile.Definition, env pagefile.Env, optFns ...func(*Options)) *Server {
	opts := Options{Logger: slog.Default()}
	for _, fn := range optFns {
		fn(&opts)
	}
	env.Logger = opts.Logger
	return &Server{def: def, env: env, opts: opts}
}

// Handler routes / to the rendered document, /live to the websocket and
// /up to a health check.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	ws := websocket.Handler(s.handleConn)
	mux.HandleFunc("/live", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ws.ServeHTTP(w, r)
	})
	mux.HandleFunc("/", s.handleDocument)
	return mux
}

// start builds and starts a fresh page session.
func (s *Server) start(ctx context.Context, prepare func(*pagefile.Built), extra ...func(*page.Options)) (*page.Page, error) {
	built, err := pagefile.Build(s.def, s.env)
	if err != nil {
		return nil, err
	}
	if prepare != nil {
		prepare(built)
	}

	opts := []func(*page.Options){page.WithLogger(s.opts.Logger)}
	for _, fn := range s.opts.Observers {
		opts = append(opts, page.WithRenderObserver(fn))
	}
	opts = append(opts, extra...)

	return page.NewInitializer(built.Deps, built.Options(opts...)...).Start(ctx, built.Config)
}

func (s *Server) handleDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	p, err := s.start(r.Context(), nil)
	if err != nil {
		s.opts.Logger.Error("start page", "page", s.def.Name, "error", err)
		http.Error(w, "page failed to start", http.StatusInternalServerError)
		return
	}
	defer p.Close()

	var body string
	p.Inspect(func(root page.Node, _ *page.Results) {
		body, err = document(root)
	})
	if err != nil {
		s.opts.Logger.Error("render document", "page", s.def.Name, "error", err)
		http.Error(w, "page failed to render", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, body)
}

// document marks the live root and appends the client script to the body of
// the document it lives in.
func document(live page.Node) (string, error) {
	root, ok := live.(*htmldom.Node)
	if !ok {
		return "", fmt.Errorf("unsupported live node %T", live)
	}
	root.HTML().Attr = append(root.HTML().Attr, html.Attribute{Key: RootMarker})

	doc := root.Document()
	body := findBody(doc)
	if body == nil {
		return "", htmldom.ErrNoRoot
	}
	script := &html.Node{Type: html.ElementNode, Data: "script", DataAtom: atom.Script}
	script.AppendChild(&html.Node{Type: html.RawNode, Data: clientScript})
	body.AppendChild(script)
	return htmldom.Render(doc)
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == atom.Body {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

type peer struct {
	mu      sync.Mutex
	encoder *json.Encoder
	logger  *slog.Logger
}

func (p *peer) write(f Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.encoder.Encode(f); err != nil {
		p.logger.Debug("write frame", "type", f.Type, "error", err)
	}
}

func (p *peer) writeError(requestID, code, message string) {
	p.write(Frame{Type: FrameError, RequestID: requestID, Code: code, Message: message})
}

// observe pushes every render to the client.
func (p *peer) observe(info page.RenderInfo) {
	markup, err := htmldom.Markup(info.Tree)
	if err != nil {
		p.logger.Error("serialise render", "page", info.PageID, "seq", info.Seq, "error", err)
		return
	}
	p.write(Frame{
		Type:     FrameRender,
		Seq:      info.Seq,
		Trigger:  string(info.Trigger),
		Command:  info.Command,
		InFlight: info.InFlight,
		HTML:     markup,
	})
}

func (s *Server) handleConn(conn *websocket.Conn) {
	defer func() { _ = conn.Close() }()

	ctx := context.Background()
	if req := conn.Request(); req != nil {
		ctx = req.Context()
	}

	pr := &peer{encoder: json.NewEncoder(conn), logger: s.opts.Logger}
	p, err := s.start(ctx, func(b *pagefile.Built) {
		b.Navigator.OnNavigate(func(u *url.URL) {
			pr.write(Frame{Type: FrameRedirect, URL: u.String()})
		})
	}, page.WithRenderObserver(pr.observe))
	if err != nil {
		s.opts.Logger.Error("start page session", "page", s.def.Name, "error", err)
		pr.writeError("", "UNAVAILABLE", "page failed to start")
		return
	}
	defer p.Close()
	logger := s.opts.Logger.With("page", p.ID())
	logger.Info("live session opened")
	defer logger.Info("live session closed")

	decoder := json.NewDecoder(conn)
	windowStart := time.Now()
	framesInWindow := 0
	decodeErrors := 0

	for {
		var frame Frame
		if err := decoder.Decode(&frame); err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			decodeErrors++
			pr.writeError("", "INVALID_ARGUMENT", "invalid frame payload")
			if decodeErrors >= maxDecodeErrorsPerConn {
				return
			}
			continue
		}
		decodeErrors = 0

		now := time.Now()
		if now.Sub(windowStart) >= time.Second {
			windowStart = now
			framesInWindow = 0
		}
		framesInWindow++
		if framesInWindow > maxFramesPerSecond {
			pr.writeError(frame.RequestID, "RESOURCE_EXHAUSTED", "rate limit exceeded")
			return
		}

		switch frame.Type {
		case FrameCommand:
			handleCommand(ctx, p, pr, frame)
		case FrameReload:
			go func(requestID string) {
				if err := p.Reload(ctx); err != nil {
					pr.writeError(requestID, "INTERNAL", err.Error())
					return
				}
				pr.write(Frame{Type: FrameResult, RequestID: requestID, Command: page.CommandReload})
			}(frame.RequestID)
		default:
			pr.writeError(frame.RequestID, "INVALID_ARGUMENT", "unsupported frame type")
		}
	}
}

// handleCommand invokes the command and answers with a result frame once its
// outcome is known. Pending outcomes are awaited off the read loop.
func handleCommand(ctx context.Context, p *page.Page, pr *peer, frame Frame) {
	name := strings.TrimSpace(frame.Command)
	if name == "" {
		pr.writeError(frame.RequestID, "INVALID_ARGUMENT", "command is required")
		return
	}

	out, err := p.Invoke(ctx, name, frame.Args...)
	if err != nil {
		code := "INTERNAL"
		if errors.Is(err, page.ErrUnknownCommand) {
			code = "NOT_FOUND"
		}
		pr.writeError(frame.RequestID, code, err.Error())
		return
	}

	switch o := out.(type) {
	case *page.Future:
		go func() {
			v, err := o.Wait(ctx)
			if err != nil {
				pr.writeError(frame.RequestID, "INTERNAL", err.Error())
				return
			}
			pr.write(Frame{Type: FrameResult, RequestID: frame.RequestID, Command: name, Value: v})
		}()
	case page.Value:
		pr.write(Frame{Type: FrameResult, RequestID: frame.RequestID, Command: name, Value: o.V})
	default:
		pr.write(Frame{Type: FrameResult, RequestID: frame.RequestID, Command: name})
	}
}
