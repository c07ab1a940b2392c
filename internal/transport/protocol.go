package transport

import (
	"github.com/chadiek/voicebot/internal/llm"
)

// Control record types sent by the client.
const (
	TypeStart    = "start"
	TypeAnnounce = "announce"
	TypeConfig   = "config"
	TypeEnd      = "end"
	TypeDTMF     = "dtmf"
)

// Record types sent to the client.
const (
	TypeGreeting  = "greeting"
	TypeResponse  = "response"
	TypeEnded     = "ended"
	TypeConfigAck = "config-ack"
	TypeBargeIn   = "barge-in"
	TypeTransfer  = "transfer"
	TypeError     = "error"
)

// control is an inbound text frame. Industry is accepted as an alias of
// Profile.
type control struct {
	Type     string `json:"type"`
	Profile  string `json:"profile,omitempty"`
	Industry string `json:"industry,omitempty"`
	Voice    string `json:"voice,omitempty"`
	Ambience string `json:"ambience,omitempty"`
	Text     string `json:"text,omitempty"`
	BargeIn  *bool  `json:"barge_in,omitempty"`
	Digit    string `json:"digit,omitempty"`
}

func (c control) profile() string {
	if c.Profile != "" {
		return c.Profile
	}
	return c.Industry
}

// spokenRecord precedes the WAV frame of a greeting, response or announce.
type spokenRecord struct {
	Type       string `json:"type"`
	Channel    string `json:"channel"`
	Text       string `json:"text"`
	Recognized string `json:"recognized,omitempty"`
	Profile    string `json:"profile,omitempty"`
	Cancelled  bool   `json:"cancelled,omitempty"`
}

type endedRecord struct {
	Type       string     `json:"type"`
	Channel    string     `json:"channel"`
	Summary    string     `json:"summary"`
	Turns      int        `json:"turns"`
	Transcript []llm.Turn `json:"transcript"`
}

type configAck struct {
	Type    string `json:"type"`
	BargeIn bool   `json:"barge_in"`
}

type notice struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text,omitempty"`
	Error   string `json:"error,omitempty"`
}
