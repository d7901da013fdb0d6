package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"mathrush/internal/domain"
	"mathrush/internal/game"
)

// QuestionSource serves validated question packs.
type QuestionSource interface {
	GetPack(ctx context.Context, packID string) ([]domain.Question, error)
}

// ProfileStore is the full profile surface the transport needs: the gameplay
// fields the engine writes plus the cosmetic/identity fields it does not.
type ProfileStore interface {
	game.ProfileRepository
	SetNickname(ctx context.Context, userID, nickname string) error
	MarkTutorialSeen(ctx context.Context, userID string) error
	Equip(ctx context.Context, userID, avatar, accessory string) error
}

// WSHandler upgrades connections and runs one round session engine per socket.
type WSHandler struct {
	questions QuestionSource
	profiles  ProfileStore
	board     game.ScoreBoard
	rules     game.Rules
	packID    string
	log       zerolog.Logger
	upgrader  websocket.Upgrader
}

func NewWSHandler(questions QuestionSource, profiles ProfileStore, board game.ScoreBoard, rules game.Rules, packID string, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		questions: questions,
		profiles:  profiles,
		board:     board,
		rules:     rules,
		packID:    packID,
		log:       log,
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

type answerPayload struct {
	ChoiceKey *string `json:"choiceKey"`
}

type powerupPayload struct {
	Kind string `json:"kind"`
}

type leaderboardPayload struct {
	Limit int `json:"limit"`
}

type equipPayload struct {
	Avatar    string `json:"avatar"`
	Accessory string `json:"accessory"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// wireQuestion is the client view of a question; the answer key never leaves
// the server.
type wireQuestion struct {
	ID      string          `json:"id"`
	Prompt  string          `json:"prompt"`
	Choices []domain.Choice `json:"choices"`
}

type wireState struct {
	Phase          game.Phase     `json:"phase"`
	Score          int            `json:"score"`
	HighScore      int            `json:"highScore"`
	Streak         int            `json:"streak"`
	Proximity      int            `json:"proximity"`
	Difficulty     string         `json:"difficulty"`
	TimeLeft       int            `json:"timeLeft"`
	TimeLimit      int            `json:"timeLimit"`
	TotalQuestions int            `json:"totalQuestions"`
	CorrectAnswers int            `json:"correctAnswers"`
	Powerups       domain.Charges `json:"powerups"`
	Eliminated     []string       `json:"eliminatedChoices"`
	Locked         bool           `json:"locked"`
	TimerPaused    bool           `json:"timerPaused"`
	Question       *wireQuestion  `json:"question,omitempty"`
}

type wireProfile struct {
	Nickname        string   `json:"nickname"`
	Avatar          string   `json:"avatar"`
	Accessory       string   `json:"accessory"`
	HasSeenTutorial bool     `json:"hasSeenTutorial"`
	Gear            []string `json:"gear"`
	HighScore       int      `json:"highScore"`
}

func toWireState(s game.Snapshot) wireState {
	out := wireState{
		Phase:          s.Phase,
		Score:          s.Score,
		HighScore:      s.HighScore,
		Streak:         s.Streak,
		Proximity:      s.Proximity,
		Difficulty:     s.Difficulty.String(),
		TimeLeft:       s.TimeLeft,
		TimeLimit:      s.TimeLimit,
		TotalQuestions: s.TotalQuestions,
		CorrectAnswers: s.CorrectAnswers,
		Powerups:       s.Charges,
		Eliminated:     s.Eliminated,
		Locked:         s.Locked,
		TimerPaused:    s.TimerPaused,
	}
	if s.Question != nil {
		out.Question = &wireQuestion{
			ID:      s.Question.ID,
			Prompt:  s.Question.Prompt,
			Choices: s.Question.Choices,
		}
	}
	return out
}

type eventPayload struct {
	State   wireState           `json:"state"`
	Answer  *game.AnswerOutcome `json:"answer,omitempty"`
	Reward  *game.RewardUnlock  `json:"reward,omitempty"`
	Summary *game.RoundSummary  `json:"summary,omitempty"`
}

// ServeWS upgrades the request and drives a session for the identified user.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}

	questions, err := h.questions.GetPack(r.Context(), h.packID)
	if err != nil {
		h.log.Error().Err(err).Str("pack", h.packID).Msg("question pack unavailable")
		http.Error(w, "question pack unavailable", http.StatusInternalServerError)
		return
	}
	bank, err := game.NewBank(questions, nil)
	if err != nil {
		h.log.Error().Err(err).Str("pack", h.packID).Msg("question pack rejected")
		http.Error(w, "question pack unavailable", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("ws upgrade failed")
		return
	}
	defer conn.Close()

	if name := r.URL.Query().Get("name"); name != "" {
		if err := h.profiles.SetNickname(r.Context(), userID, name); err != nil {
			h.log.Error().Err(err).Msg("set nickname failed")
		}
	}

	engine := game.NewEngine(game.EngineConfig{
		UserID:   userID,
		Profiles: h.profiles,
		Board:    h.board,
		Bank:     bank,
		Rules:    h.rules,
		Logger:   h.log,
	})
	defer engine.Close()

	updates, unsubscribe := engine.Subscribe()
	defer unsubscribe()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug().Err(err).Msg("ws write error")
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case ev, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- toOutbound(ev):
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	if profile, err := h.profiles.Load(r.Context(), userID); err == nil {
		send <- outboundMessage[any]{Type: "profile", Payload: wireProfile{
			Nickname:        profile.Nickname,
			Avatar:          profile.Avatar,
			Accessory:       profile.Accessory,
			HasSeenTutorial: profile.HasSeenTutorial,
			Gear:            profile.Gear,
			HighScore:       profile.HighScore,
		}}
	} else {
		h.log.Error().Err(err).Msg("profile load failed")
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "start":
			if err := engine.StartRound(r.Context()); err != nil {
				send <- errorMessage(err.Error())
			}
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("invalid answer payload")
				continue
			}
			key := ""
			if payload.ChoiceKey != nil {
				key = *payload.ChoiceKey
			}
			engine.SubmitAnswer(r.Context(), key)
		case "powerup":
			var payload powerupPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("invalid powerup payload")
				continue
			}
			if err := engine.ActivatePowerup(r.Context(), domain.PowerupKind(payload.Kind)); err != nil {
				send <- errorMessage(err.Error())
			}
		case "restart":
			if err := engine.Restart(r.Context()); err != nil {
				send <- errorMessage(err.Error())
			}
		case "leaderboard":
			var payload leaderboardPayload
			_ = json.Unmarshal(inbound.Payload, &payload)
			entries, err := h.board.Top(r.Context(), payload.Limit)
			if err != nil {
				send <- errorMessage("leaderboard unavailable")
				continue
			}
			send <- outboundMessage[any]{Type: "leaderboard", Payload: entries}
		case "tutorialSeen":
			if err := h.profiles.MarkTutorialSeen(r.Context(), userID); err != nil {
				h.log.Error().Err(err).Msg("mark tutorial failed")
			}
		case "equip":
			var payload equipPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- errorMessage("invalid equip payload")
				continue
			}
			if err := h.profiles.Equip(r.Context(), userID, payload.Avatar, payload.Accessory); err != nil {
				h.log.Error().Err(err).Msg("equip failed")
			}
		default:
			send <- errorMessage("unsupported message type")
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
	engine.WaitPersist()
}

func toOutbound(ev game.Event) outboundMessage[any] {
	payload := eventPayload{
		State:   toWireState(ev.Snapshot),
		Answer:  ev.Answer,
		Reward:  ev.Reward,
		Summary: ev.Summary,
	}
	return outboundMessage[any]{Type: string(ev.Kind), Payload: payload}
}

func errorMessage(msg string) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: msg}}
}
