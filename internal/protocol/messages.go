// Package protocol defines the JSON frames exchanged over the game socket.
// Every frame is {"type": ..., "payload": {...}}.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ---- Client -> Server ----
const (
	TypeJoin              = "join"
	TypeSelectSecretQueen = "selectSecretQueen"
	TypeMove              = "move"
	TypeResign            = "resign"
	TypeOfferDraw         = "offerDraw"
	TypeAcceptDraw        = "acceptDraw"
	TypeDeclineDraw       = "declineDraw"
	TypeOfferRematch      = "offerRematch"
)

// ---- Server -> Client ----
const (
	TypeJoined               = "joined"
	TypeRejoined             = "rejoined"
	TypeMatchStarted         = "matchStarted"
	TypeSecretQueenConfirmed = "secretQueenConfirmed"
	TypeAllSelected          = "allSelected"
	TypeBoardUpdated         = "boardUpdated"
	TypeMoveRejected         = "moveRejected"
	TypeDrawOffered          = "drawOffered"
	TypeDrawOfferSent        = "drawOfferSent"
	TypeDrawDeclined         = "drawDeclined"
	TypeRematchOffered       = "rematchOffered"
	TypeRematchOfferSent     = "rematchOfferSent"
	TypeMatchConcluded       = "matchConcluded"
	TypeStartRematch         = "startRematch"
	TypeOpponentDisconnected = "opponentDisconnected"
	TypeOpponentReconnected  = "opponentReconnected"
	TypeRoomClosed           = "roomClosed"
	TypeSessionReplaced      = "sessionReplaced"
	TypeError                = "error"
)

var ErrMalformed = errors.New("malformed frame")

// Inbound is a decoded client frame; Payload is decoded per Type.
type Inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Message is an outbound frame.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Decode parses a raw text frame.
func Decode(data []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(data, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	in.Type = strings.TrimSpace(in.Type)
	if in.Type == "" {
		return Inbound{}, fmt.Errorf("%w: missing type", ErrMalformed)
	}
	return in, nil
}

// Bind decodes the payload into dst. An absent payload leaves dst zeroed.
func (in Inbound) Bind(dst any) error {
	if len(in.Payload) == 0 || string(in.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(in.Payload, dst); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformed, in.Type, err)
	}
	return nil
}

type JoinPayload struct {
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId,omitempty"`
}

type SelectSecretQueenPayload struct {
	Square string `json:"square"`
}

type MovePayload struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Promotion string `json:"promotion,omitempty"`
}

// PlayerView is one seat as seen by a particular recipient. Secret fields
// are only filled in for the recipient's own seat.
type PlayerView struct {
	Color                    string `json:"color"`
	Connected                bool   `json:"connected"`
	Transformed              bool   `json:"transformed"`
	IsYou                    bool   `json:"isYou"`
	SecretQueenInitialSquare string `json:"secretQueenInitialSquare,omitempty"`
	SecretQueenCurrentSquare string `json:"secretQueenCurrentSquare,omitempty"`
	GraceDeadline            int64  `json:"graceDeadline,omitempty"` // unix ms while disconnected
}

// Players is keyed by color.
type Players map[string]PlayerView

type Outcome struct {
	Winner *string `json:"winner"`
	Reason string  `json:"reason"`
}

type Joined struct {
	RoomID        string          `json:"roomId"`
	PlayerID      string          `json:"playerId"`
	Color         string          `json:"color"`
	Board         string          `json:"board"`
	Turn          string          `json:"turn"`
	Phase         string          `json:"phase"`
	Players       Players         `json:"players"`
	You           PlayerView      `json:"you"`
	Outcome       *Outcome        `json:"outcome,omitempty"`
	DrawOffer     string          `json:"drawOffer,omitempty"` // color of the offering seat
	RematchOffers map[string]bool `json:"rematchOffers,omitempty"`
}

type MatchStarted struct {
	RoomID  string  `json:"roomId"`
	Board   string  `json:"board"`
	Turn    string  `json:"turn"`
	Phase   string  `json:"phase"`
	Players Players `json:"players"`
}

type SecretQueenConfirmed struct {
	Square string `json:"square"`
}

type AllSelected struct {
	Board   string  `json:"board"`
	Turn    string  `json:"turn"`
	Phase   string  `json:"phase"`
	Players Players `json:"players"`
}

type LastMove struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Color     string `json:"color"`
	Piece     string `json:"piece"`
	SAN       string `json:"san"`
	Captured  string `json:"captured,omitempty"`
	Promotion string `json:"promotion,omitempty"`
	Revealed  bool   `json:"revealed"`
}

type TrueStatus struct {
	IsCheck                bool `json:"isCheck"`
	IsCheckmate            bool `json:"isCheckmate"`
	IsStalemate            bool `json:"isStalemate"`
	IsDraw                 bool `json:"isDraw"`
	IsThreefoldRepetition  bool `json:"isThreefoldRepetition"`
	IsInsufficientMaterial bool `json:"isInsufficientMaterial"`
	IsFiftyMoveRule        bool `json:"isFiftyMoveRule"`
}

type BoardUpdated struct {
	Board      string     `json:"board"`
	Turn       string     `json:"turn"`
	LastMove   LastMove   `json:"lastMove"`
	Players    Players    `json:"players"`
	TrueStatus TrueStatus `json:"trueStatus"`
}

type MoveRejected struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
}

type MatchConcluded struct {
	Outcome Outcome `json:"outcome"`
}

type StartRematch struct {
	Board      string     `json:"board"`
	Turn       string     `json:"turn"`
	Phase      string     `json:"phase"`
	Color      string     `json:"color"`
	PlayerData PlayerView `json:"playerData"`
	Players    Players    `json:"players"`
}

// Notice carries a human readable message; the grace fields are set only
// on opponentDisconnected.
type Notice struct {
	Message       string `json:"message"`
	GraceDeadline int64  `json:"graceDeadline,omitempty"`
	GraceSeconds  int    `json:"graceSeconds,omitempty"`
}

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
