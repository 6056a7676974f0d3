package flowboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

const commandTimeout = 5 * time.Second

// CommandRunner abstracts CLI invocation so the parsers can be tested
// against canned output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("run %s: %w", name, err)
	}
	return string(out), nil
}

// OpenClawAdapter surfaces operational data from the local OpenClaw
// installation: session token usage, cron jobs, channel status, and
// gateway health. Every read degrades to an empty result with the Error
// field set rather than failing the request.
type OpenClawAdapter struct {
	Bin         string
	ConfigPath  string
	SessionsDir string
	Runner      CommandRunner
	now         func() time.Time
}

func NewOpenClawAdapter(bin, configPath, sessionsDir string) *OpenClawAdapter {
	if bin == "" {
		bin = "openclaw"
	}
	return &OpenClawAdapter{
		Bin:         bin,
		ConfigPath:  configPath,
		SessionsDir: sessionsDir,
		Runner:      execRunner{},
		now:         time.Now,
	}
}

func (a *OpenClawAdapter) run(args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	return a.Runner.Run(ctx, a.Bin, args...)
}

type SessionSummary struct {
	Key         string `json:"key"`
	Age         string `json:"age"`
	Model       string `json:"model"`
	TokensUsed  string `json:"tokensUsed"`
	TokensTotal string `json:"tokensTotal"`
	Percent     int    `json:"percent"`
	Kind        string `json:"kind"`
	Active      bool   `json:"active"`
}

type TokenSummary struct {
	TotalSessions      int    `json:"totalSessions"`
	ActiveSessions     int    `json:"activeSessions"`
	TotalTokensUsed    string `json:"totalTokensUsed"`
	TotalContextWindow string `json:"totalContextWindow"`
	AverageUsage       string `json:"averageUsage"`
}

type TokenReport struct {
	Sessions    []SessionSummary `json:"sessions"`
	Summary     TokenSummary     `json:"summary"`
	LastUpdated string           `json:"lastUpdated"`
	Error       string           `json:"error,omitempty"`
}

var (
	sessionKeyRe     = regexp.MustCompile(`^(\S+)\s+(agent:main:\S+)`)
	tokenPairRe      = regexp.MustCompile(`(\d+(?:\.\d+)?k?)/(\d+(?:\.\d+)?k?)`)
	tokenPercentRe   = regexp.MustCompile(`\((\d+)%\)`)
	gatewayLatencyRe = regexp.MustCompile(`reachable\s+(\d+)ms`)
	gatewaySessionRe = regexp.MustCompile(`sessions\s+(\d+)`)
	gatewayNodeRe    = regexp.MustCompile(`node\s+([\d.]+)`)
	columnGapRe      = regexp.MustCompile(`\s{2,}`)
)

// Tokens runs `openclaw sessions list` and parses the per-session token
// columns. Lines look like:
//
//	direct  agent:main:main  2m ago  k2p5  136k/262k (52%)  system id:...
func (a *OpenClawAdapter) Tokens() TokenReport {
	report := TokenReport{
		Sessions:    []SessionSummary{},
		LastUpdated: a.now().UTC().Format(time.RFC3339Nano),
	}
	output, err := a.run("sessions", "list")
	if err != nil {
		report.Error = err.Error()
		return report
	}

	var totalUsed, totalContext float64
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || !strings.Contains(trimmed, "agent:main") {
			continue
		}
		keyMatch := sessionKeyRe.FindStringSubmatch(trimmed)
		if keyMatch == nil {
			continue
		}
		kind := keyMatch[1]
		key := strings.TrimPrefix(keyMatch[2], "agent:main:")
		rest := strings.TrimSpace(trimmed[len(keyMatch[0]):])
		parts := splitColumns(rest)

		session := SessionSummary{Key: key, Kind: kind, TokensUsed: "-", TokensTotal: "-"}
		if len(parts) > 0 {
			session.Age = parts[0]
		}
		if len(parts) > 1 {
			session.Model = parts[1]
		}
		tokens := ""
		if len(parts) > 2 {
			tokens = parts[2]
		}
		if pair := tokenPairRe.FindStringSubmatch(tokens); pair != nil {
			session.TokensUsed = pair[1]
			session.TokensTotal = pair[2]
			session.Active = true
			if pct := tokenPercentRe.FindStringSubmatch(trimmed); pct != nil {
				session.Percent, _ = strconv.Atoi(pct[1])
			}
			totalUsed += tokenCount(pair[1])
			totalContext += tokenCount(pair[2])
		}
		report.Sessions = append(report.Sessions, session)
	}

	active := 0
	percentSum := 0
	for _, s := range report.Sessions {
		if s.Active {
			active++
			percentSum += s.Percent
		}
	}
	report.Summary = TokenSummary{
		TotalSessions:      len(report.Sessions),
		ActiveSessions:     active,
		TotalTokensUsed:    fmt.Sprintf("%dk", int(math.Round(totalUsed/1000))),
		TotalContextWindow: fmt.Sprintf("%dk", int(math.Round(totalContext/1000))),
		AverageUsage:       "0%",
	}
	if active > 0 {
		report.Summary.AverageUsage = fmt.Sprintf("%d%%", int(math.Round(float64(percentSum)/float64(active))))
	}
	return report
}

// splitColumns splits on runs of two or more spaces, the way the CLI
// separates its table columns.
func splitColumns(line string) []string {
	var parts []string
	for _, part := range columnGapRe.Split(line, -1) {
		part = strings.TrimSpace(part)
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func tokenCount(value string) float64 {
	multiplier := 1.0
	if strings.Contains(value, "k") {
		multiplier = 1000
		value = strings.ReplaceAll(value, "k", "")
	}
	n, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return n * multiplier
}

type CronEntry struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Next     string `json:"next"`
	Last     string `json:"last"`
	Status   string `json:"status"`
	Target   string `json:"target"`
	Agent    string `json:"agent"`
}

type CronReport struct {
	Crons []CronEntry `json:"crons"`
	Count int         `json:"count"`
	Error string      `json:"error,omitempty"`
}

// Crons parses the fixed-width table printed by `openclaw cron list`.
// Column offsets track the CLI's header layout.
func (a *OpenClawAdapter) Crons() CronReport {
	report := CronReport{Crons: []CronEntry{}}
	output, err := a.run("cron", "list")
	if err != nil {
		report.Error = err.Error()
		return report
	}
	for _, line := range strings.Split(output, "\n") {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "ID") || strings.Contains(line, "------") {
			continue
		}
		entry := CronEntry{
			ID:       fixedColumn(line, 0, 36),
			Name:     fixedColumn(line, 37, 61),
			Schedule: fixedColumn(line, 62, 94),
			Next:     fixedColumn(line, 95, 105),
			Last:     fixedColumn(line, 106, 116),
			Status:   fixedColumn(line, 117, 126),
			Target:   fixedColumn(line, 127, 136),
			Agent:    fixedColumn(line, 137, len(line)),
		}
		if entry.ID == "" || entry.Name == "" {
			continue
		}
		report.Crons = append(report.Crons, entry)
	}
	report.Count = len(report.Crons)
	return report
}

func fixedColumn(line string, start, end int) string {
	if start >= len(line) {
		return ""
	}
	if end > len(line) {
		end = len(line)
	}
	return strings.TrimSpace(line[start:end])
}

type ChannelStatus struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
	Status  string `json:"status"`
}

type ChannelReport struct {
	Channels []ChannelStatus `json:"channels"`
	Error    string          `json:"error,omitempty"`
}

// Channels reads channel state out of the OpenClaw config file rather
// than the CLI; a flowchat entry is appended whenever the local session
// directory exists.
func (a *OpenClawAdapter) Channels() ChannelReport {
	report := ChannelReport{Channels: []ChannelStatus{}}
	if a.ConfigPath == "" {
		return report
	}
	raw, err := os.ReadFile(a.ConfigPath)
	if err != nil {
		if os.IsNotExist(err) {
			return report
		}
		report.Error = err.Error()
		return report
	}
	var config struct {
		Channels map[string]struct {
			Enabled bool `json:"enabled"`
		} `json:"channels"`
	}
	if err := json.Unmarshal(raw, &config); err != nil {
		report.Error = err.Error()
		return report
	}
	for name, settings := range config.Channels {
		status := "disabled"
		if settings.Enabled {
			status = "connected"
		}
		report.Channels = append(report.Channels, ChannelStatus{
			Name:    name,
			Enabled: settings.Enabled,
			Status:  status,
		})
	}
	sort.Slice(report.Channels, func(i, j int) bool {
		return report.Channels[i].Name < report.Channels[j].Name
	})
	if a.SessionsDir != "" {
		if _, err := os.Stat(a.SessionsDir); err == nil {
			report.Channels = append(report.Channels, ChannelStatus{
				Name:    "flowchat",
				Enabled: true,
				Status:  "active",
			})
		}
	}
	return report
}

type GatewayStatus struct {
	Running   bool   `json:"running"`
	Dashboard string `json:"dashboard"`
	Reachable *int   `json:"reachable"`
	Sessions  int    `json:"sessions"`
	Version   string `json:"version,omitempty"`
	Raw       string `json:"raw,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (a *OpenClawAdapter) GatewayStatus() GatewayStatus {
	status := GatewayStatus{Dashboard: "http://127.0.0.1:18789/"}
	output, err := a.run("status")
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Raw = output
	status.Running = strings.Contains(output, "Gateway") && !strings.Contains(output, "not running")
	if m := gatewayLatencyRe.FindStringSubmatch(output); m != nil {
		ms, _ := strconv.Atoi(m[1])
		status.Reachable = &ms
	}
	if m := gatewaySessionRe.FindStringSubmatch(output); m != nil {
		status.Sessions, _ = strconv.Atoi(m[1])
	}
	if m := gatewayNodeRe.FindStringSubmatch(output); m != nil {
		status.Version = m[1]
	}
	return status
}

type GatewayRestartResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// RestartGateway fires the restart in the background and reports that
// it was initiated; the gateway drops its own connection mid-restart so
// waiting for completion is pointless.
func (a *OpenClawAdapter) RestartGateway() GatewayRestartResult {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := a.Runner.Run(ctx, a.Bin, "gateway", "restart"); err != nil {
			log.Printf("gateway restart: %v", err)
		}
	}()
	return GatewayRestartResult{Success: true, Message: "Gateway restart initiated"}
}
