package worker

import (
	"encoding/json"
	"strconv"
)

type loginIdentifier struct {
	Type string `json:"type"`
	User string `json:"user"`
}

type loginRequest struct {
	Type                     string          `json:"type"`
	Identifier               loginIdentifier `json:"identifier"`
	Password                 string          `json:"password"`
	InitialDeviceDisplayName string          `json:"initial_device_display_name,omitempty"`
}

type loginResponse struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
}

type syncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     roomsSection `json:"rooms"`
}

type roomsSection struct {
	Join   map[string]joinedRoom  `json:"join"`
	Invite map[string]invitedRoom `json:"invite"`
}

type joinedRoom struct {
	Timeline struct {
		Events []event `json:"events"`
	} `json:"timeline"`
}

type invitedRoom struct {
	InviteState struct {
		Events []event `json:"events"`
	} `json:"invite_state"`
}

type event struct {
	Type     string          `json:"type"`
	EventID  string          `json:"event_id"`
	Sender   string          `json:"sender"`
	StateKey *string         `json:"state_key,omitempty"`
	Content  json.RawMessage `json:"content"`
}

type messageContent struct {
	MsgType string `json:"msgtype"`
	Body    string `json:"body"`
}

type memberContent struct {
	Membership string `json:"membership"`
}

type sendResponse struct {
	EventID string `json:"event_id"`
}

// matrixError is the standard error body of the client-server API.
type matrixError struct {
	Status  int    `json:"-"`
	ErrCode string `json:"errcode"`
	Message string `json:"error"`
}

func (e *matrixError) Error() string {
	if e.ErrCode == "" {
		return "matrix: http status " + strconv.Itoa(e.Status)
	}
	return "matrix: " + e.ErrCode + ": " + e.Message
}

type question struct {
	Question string `json:"question"`
}

type prediction struct {
	Text string `json:"text"`
}
