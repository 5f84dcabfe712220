package config

import (
	"encoding/json"
	"slices"
	"testing"
	"time"
)

func TestRoleOther(t *testing.T) {
	if RoleLocal.Other() != RoleRemote || RoleRemote.Other() != RoleLocal {
		t.Fatal("Other() does not swap roles")
	}
	for i, r := range Roles {
		if int(r) != i {
			t.Errorf("Roles[%d] = %s, roles must double as indexes", i, r)
		}
	}
}

func TestRoleJSON(t *testing.T) {
	type msg struct {
		From Role `json:"from"`
	}

	data, err := json.Marshal(msg{From: RoleRemote})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"from":"remote"}` {
		t.Errorf("Marshal = %s", data)
	}

	var m msg
	if err := json.Unmarshal([]byte(`{"from":"local"}`), &m); err != nil {
		t.Fatal(err)
	}
	if m.From != RoleLocal {
		t.Errorf("Unmarshal = %s, want local", m.From)
	}

	if err := json.Unmarshal([]byte(`{"from":"mallory"}`), &m); err == nil {
		t.Error("unknown role accepted")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"unknown mode", func(c *Config) { c.Mode = "sideways" }, true},
		{"offer ws without url", func(c *Config) { c.Mode = ModeOffer }, true},
		{"offer ws with url", func(c *Config) { c.Mode = ModeOffer; c.WSURL = "ws://h:1" }, false},
		{"answer ws", func(c *Config) { c.Mode = ModeAnswer }, false},
		{"mqtt without session", func(c *Config) { c.Mode = ModeAnswer; c.Signaling = SignalingMQTT }, true},
		{"mqtt with session", func(c *Config) {
			c.Mode = ModeOffer
			c.Signaling = SignalingMQTT
			c.MQTTSession = "s"
		}, false},
		{"unknown signaling", func(c *Config) { c.Mode = ModeOffer; c.Signaling = "pigeon" }, true},
		{"nothing captured", func(c *Config) { c.Capture = Constraints{} }, true},
		{"frame rate zero", func(c *Config) { c.FrameRate = 0 }, true},
		{"frame rate too high", func(c *Config) { c.FrameRate = 240 }, true},
		{"no timeout", func(c *Config) { c.Timeout = 0 }, true},
		{"audio only", func(c *Config) { c.Capture = Constraints{Audio: true}; c.Timeout = time.Second }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(&c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLocalRoles(t *testing.T) {
	tests := []struct {
		mode Mode
		want []Role
	}{
		{ModeLoopback, []Role{RoleLocal, RoleRemote}},
		{ModeOffer, []Role{RoleLocal}},
		{ModeAnswer, []Role{RoleRemote}},
	}
	for _, tt := range tests {
		c := Config{Mode: tt.mode}
		if got := c.LocalRoles(); !slices.Equal(got, tt.want) {
			t.Errorf("LocalRoles(%s) = %v, want %v", tt.mode, got, tt.want)
		}
	}
}
