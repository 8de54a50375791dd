package main

import "time"

// Flag structs to decouple cobra from logic for testing.

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string // manager TOML config
	APIUrl     string // daemon base URL, e.g. http://127.0.0.1:9898/api
	APITimeout time.Duration
}

type StartFlags struct {
	CoreConfig string // proxy core YAML config path
	APIUrl     string
	APITimeout time.Duration
}

type ReloadFlags struct {
	CoreConfig string
	APIUrl     string
	APITimeout time.Duration
}

type SwitchFlags struct {
	Selector   string
	Name       string
	APIUrl     string
	APITimeout time.Duration
}

type DelayFlags struct {
	Proxy      string
	URL        string
	TimeoutMs  int
	APIUrl     string
	APITimeout time.Duration
}

type ExportLogsFlags struct {
	Dir        string
	APIUrl     string
	APITimeout time.Duration
}

type ServeFlags struct {
	ConfigPath string
}
