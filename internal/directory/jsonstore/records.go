package jsonstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const (
	UsersFile       = "users.json"
	RoomsFile       = "rooms.json"
	CamerasFile     = "cameras.json"
	AccessRulesFile = "access_rules.json"
	PhotosDir       = "user_photos"
)

// flexID accepts ids written either as JSON numbers or strings
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

type userRecord struct {
	ID             flexID `json:"id"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	PassportNumber string `json:"passport_number"`
	Department     string `json:"departament"`
}

func (u userRecord) displayName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

type roomRecord struct {
	ID   flexID `json:"id_rooms"`
	Name string `json:"name_rooms"`
}

type cameraRecord struct {
	IP     string `json:"camera_ip"`
	RoomID flexID `json:"id_rooms"`
}

type ruleRecord struct {
	Department string `json:"departament"`
	RoomID     flexID `json:"id_rooms"`
}
