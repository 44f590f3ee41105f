package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"proctored-quiz-service/internal/app"
	"proctored-quiz-service/internal/domain"
	"proctored-quiz-service/internal/session"
	"proctored-quiz-service/internal/submit"
)

// WSHandler runs one proctored session per websocket connection.
type WSHandler struct {
	exams      *app.ExamService
	results    submit.ResultsAPI
	submitOpts submit.Options
	logger     *zap.Logger
	upgrader   websocket.Upgrader
}

func NewWSHandler(exams *app.ExamService, results submit.ResultsAPI, submitOpts submit.Options, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	submitOpts.Logger = logger
	return &WSHandler{
		exams:      exams,
		results:    results,
		submitOpts: submitOpts,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type selectPayload struct {
	QuestionID int    `json:"questionId"`
	Option     string `json:"option"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type startedPayload struct {
	AttemptID string           `json:"attemptId"`
	Topic     string           `json:"topic"`
	Resumed   bool             `json:"resumed"`
	Remaining session.Clock    `json:"remaining"`
	Position  session.Position `json:"position"`
}

type terminatedPayload struct {
	Cause   domain.TerminationCause `json:"cause"`
	Summary domain.ResultSummary    `json:"summary"`
}

type savedPayload struct {
	Status   submit.Status        `json:"status"`
	Attempts int                  `json:"attempts"`
	Record   domain.AttemptRecord `json:"record"`
}

// wsClient serializes writes to one connection. emit never blocks once the
// connection is closing.
type wsClient struct {
	conn       *websocket.Conn
	send       chan outboundMessage
	closing    chan struct{}
	writerDone chan struct{}
	logger     *zap.Logger
}

func newWSClient(conn *websocket.Conn, logger *zap.Logger) *wsClient {
	c := &wsClient{
		conn:       conn,
		send:       make(chan outboundMessage, 32),
		closing:    make(chan struct{}),
		writerDone: make(chan struct{}),
		logger:     logger,
	}
	go c.writeLoop()
	return c
}

func (c *wsClient) writeLoop() {
	defer close(c.writerDone)
	for {
		select {
		case msg := <-c.send:
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug("ws write error", zap.Error(err))
				return
			}
		case <-c.closing:
			return
		}
	}
}

func (c *wsClient) emit(typ string, payload any) {
	select {
	case c.send <- outboundMessage{Type: typ, Payload: payload}:
	case <-c.closing:
	case <-c.writerDone:
	}
}

func (c *wsClient) fail(err error) {
	c.emit("error", errorPayload{Message: err.Error()})
}

func (c *wsClient) close() {
	close(c.closing)
	<-c.writerDone
}

// ServeWS upgrades the request and drives a session:
// /ws?topic=&userId=&name=[&attemptId=]
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := app.StartRequest{
		Topic:     q.Get("topic"),
		UserID:    q.Get("userId"),
		Username:  q.Get("name"),
		AttemptID: q.Get("attemptId"),
	}
	if req.Topic == "" || req.UserID == "" || req.Username == "" {
		http.Error(w, "missing topic, userId, or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	client := newWSClient(conn, h.logger)
	defer client.close()

	// Closing the socket cancels pending submission retries.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// submitMu orders wg.Add against the cancel that precedes wg.Wait.
	var (
		submitted sync.Once
		submitMu  sync.Mutex
		wg        sync.WaitGroup
	)
	pipeline := submit.New(h.results, submit.NotifierFunc(func(n submit.Notice) {
		client.emit("notice", n)
	}), h.submitOpts)

	deliver := func(cause domain.TerminationCause, summary domain.ResultSummary) {
		client.emit("terminated", terminatedPayload{Cause: cause, Summary: summary})
		submitted.Do(func() {
			username := req.Username
			if owner, err := h.exams.Lookup(summary.AttemptID, req.UserID); err == nil {
				username = owner.Username
			}
			submitMu.Lock()
			defer submitMu.Unlock()
			if ctx.Err() != nil {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.persist(ctx, client, pipeline, summary.Submission(req.UserID, username))
			}()
		})
	}

	live, resumed, err := h.exams.Start(ctx, req, session.Hooks{
		Tick:    func(c session.Clock) { client.emit("tick", c) },
		LowTime: func(c session.Clock) { client.emit("lowTime", c) },
		Terminated: func(cause domain.TerminationCause, summary domain.ResultSummary) {
			client.emit("releaseCamera", nil)
			deliver(cause, summary)
		},
	})
	if err != nil {
		client.fail(err)
		return
	}
	defer wg.Wait()
	defer func() {
		submitMu.Lock()
		cancel()
		submitMu.Unlock()
	}()
	defer h.exams.Detach(live)

	machine := live.Machine
	if machine.State() == session.StateTerminated {
		summary, _ := machine.ResultSummary()
		deliver(machine.TerminationCause(), summary)
	} else if pos, err := machine.CurrentQuestion(); err == nil {
		client.emit("started", startedPayload{
			AttemptID: machine.AttemptID(),
			Topic:     machine.Topic(),
			Resumed:   resumed,
			Remaining: machine.Remaining(),
			Position:  pos,
		})
	}

	for {
		var in inboundMessage
		if err := conn.ReadJSON(&in); err != nil {
			return
		}
		h.dispatch(client, machine, in)
	}
}

func (h *WSHandler) dispatch(client *wsClient, machine *session.Machine, in inboundMessage) {
	switch in.Type {
	case "select":
		var p selectPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			client.fail(errors.New("invalid select payload"))
			return
		}
		if err := machine.SelectAnswer(p.QuestionID, p.Option); err != nil {
			client.fail(err)
			return
		}
		if pos, err := machine.CurrentQuestion(); err == nil {
			client.emit("question", pos)
		}
	case "next":
		pos, submitted, err := machine.Next()
		if err != nil {
			client.fail(err)
			return
		}
		if !submitted {
			client.emit("question", pos)
		}
	case "prev":
		pos, err := machine.Previous()
		if err != nil {
			client.fail(err)
			return
		}
		client.emit("question", pos)
	case "signal":
		var sig session.Signal
		if err := json.Unmarshal(in.Payload, &sig); err != nil {
			client.fail(errors.New("invalid signal payload"))
			return
		}
		resp := machine.Signal(sig)
		if resp.PreventDefault || resp.RestoreHistory {
			client.emit("directive", resp)
		}
	case "submit":
		if err := machine.Submit(); err != nil {
			client.fail(err)
		}
	default:
		client.fail(errors.New("unsupported message type"))
	}
}

func (h *WSHandler) persist(ctx context.Context, client *wsClient, pipeline *submit.Pipeline, sub domain.ResultSubmission) {
	outcome, err := pipeline.Submit(ctx, sub)
	if err != nil {
		if ctx.Err() == nil {
			client.emit("saveFailed", errorPayload{Message: err.Error()})
		}
		return
	}
	client.emit("saved", savedPayload{Status: outcome.Status, Attempts: outcome.Attempts, Record: outcome.Record})
}
