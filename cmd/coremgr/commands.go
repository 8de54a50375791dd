package main

import (
	"encoding/json"
	"fmt"
	"time"
)

const defaultAPIUrl = "http://127.0.0.1:9898/api"

// command bundles method-style handlers so cobra wiring stays declarative.
type command struct{}

func (c command) apiClient(apiUrl string, timeout time.Duration) (*APIClient, error) {
	if apiUrl == "" {
		apiUrl = defaultAPIUrl
	}
	client := NewAPIClient(apiUrl, timeout)
	if !client.IsReachable() {
		return nil, fmt.Errorf("daemon not reachable at %s - start it first with 'coremgr serve'", apiUrl)
	}
	return client, nil
}

// Start asks the daemon to launch the core with the given config.
func (c command) Start(f StartFlags) error {
	if f.CoreConfig == "" {
		return fmt.Errorf("start requires --core-config")
	}
	client, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	if err := client.StartCore(f.CoreConfig); err != nil {
		return err
	}
	fmt.Println("Core started")
	return nil
}

// Stop asks the daemon to stop the core.
func (c command) Stop(f GlobalFlags) error {
	client, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	if err := client.StopCore(); err != nil {
		return err
	}
	fmt.Println("Core stopped")
	return nil
}

// Status prints the daemon's view of the core lifecycle.
func (c command) Status(f GlobalFlags) error {
	client, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	raw, err := client.GetStatus()
	if err != nil {
		return err
	}
	printJSON(raw)
	return nil
}

// Reload asks the daemon to apply a new core config in place.
func (c command) Reload(f ReloadFlags) error {
	if f.CoreConfig == "" {
		return fmt.Errorf("reload requires --core-config")
	}
	client, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	if err := client.ReloadCore(f.CoreConfig); err != nil {
		return err
	}
	fmt.Println("Config reloaded")
	return nil
}

// Traffic prints the core's cumulative traffic counters.
func (c command) Traffic(f GlobalFlags) error {
	client, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	raw, err := client.GetTraffic()
	if err != nil {
		return err
	}
	printJSON(raw)
	return nil
}

// Connections prints the core's active connections.
func (c command) Connections(f GlobalFlags) error {
	client, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	raw, err := client.GetConnections()
	if err != nil {
		return err
	}
	printJSON(raw)
	return nil
}

// Version prints the running core's version.
func (c command) Version(f GlobalFlags) error {
	client, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	v, err := client.GetVersion()
	if err != nil {
		return err
	}
	fmt.Println(v)
	return nil
}

// Switch selects a proxy inside a selector group.
func (c command) Switch(f SwitchFlags) error {
	if f.Selector == "" || f.Name == "" {
		return fmt.Errorf("switch requires --selector and --name")
	}
	client, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	if err := client.SwitchProxy(f.Selector, f.Name); err != nil {
		return err
	}
	fmt.Printf("Switched %s to %s\n", f.Selector, f.Name)
	return nil
}

// Delay measures proxy latency through the daemon.
func (c command) Delay(f DelayFlags) error {
	if f.Proxy == "" {
		return fmt.Errorf("delay requires --proxy")
	}
	client, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	delay, err := client.TestDelay(f.Proxy, f.URL, f.TimeoutMs)
	if err != nil {
		return err
	}
	if delay < 0 {
		fmt.Printf("%s: probe failed\n", f.Proxy)
		return nil
	}
	fmt.Printf("%s: %dms\n", f.Proxy, delay)
	return nil
}

// ExportLogs asks the daemon to export the recent core log tail.
func (c command) ExportLogs(f ExportLogsFlags) error {
	if f.Dir == "" {
		return fmt.Errorf("export-logs requires --dir")
	}
	client, err := c.apiClient(f.APIUrl, f.APITimeout)
	if err != nil {
		return err
	}
	path, err := client.ExportLogs(f.Dir)
	if err != nil {
		return err
	}
	fmt.Printf("Exported to %s\n", path)
	return nil
}

func printJSON(v any) {
	if raw, ok := v.(json.RawMessage); ok {
		var buf any
		if err := json.Unmarshal(raw, &buf); err == nil {
			v = buf
		}
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
