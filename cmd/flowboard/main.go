package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/flowmind/flowboard/internal/flowboard"
	"github.com/flowmind/flowboard/internal/httpapi"
)

func main() {
	addr := os.Getenv("FLOWBOARD_ADDR")
	if addr == "" {
		addr = ":3456"
	}

	blobs, err := buildBlobStoreFromEnv()
	if err != nil {
		log.Fatalf("failed to initialize storage backend: %v", err)
	}

	workspaceDir := workspaceDirFromEnv()
	store := flowboard.NewStoreWithOptions(flowboard.StoreOptions{
		Blobs:              blobs,
		DataDir:            dataDirFromEnv(),
		SessionsDir:        sessionsDirFromEnv(),
		WorkspaceDir:       workspaceDir,
		MemoryDir:          strings.TrimSpace(os.Getenv("FLOWBOARD_MEMORY_DIR")),
		MemoryScanInterval: durationEnv("FLOWBOARD_MEMORY_SCAN_INTERVAL", time.Hour),
	})
	defer store.Close()

	if workspaceDir != "" {
		watcher, watchErr := flowboard.StartWorkspaceWatcher(workspaceDir, 0, store.NoteExternalEdit)
		if watchErr != nil {
			log.Printf("workspace watcher disabled: %v", watchErr)
		} else {
			defer watcher.Close()
		}
	}

	adapter := flowboard.NewOpenClawAdapter(
		os.Getenv("FLOWBOARD_OPENCLAW_BIN"),
		openclawConfigFromEnv(),
		sessionsDirFromEnv(),
	)

	server := httpapi.NewServerWithConfig(store, adapter, httpapi.ServerConfig{
		AssetsDir:    assetsDirFromEnv(),
		MaxBodyBytes: int64Env("FLOWBOARD_MAX_BODY_BYTES", 0),
	})

	log.Printf("flowboard listening on %s", addr)
	if err := http.ListenAndServe(addr, server); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}

func buildBlobStoreFromEnv() (flowboard.BlobStore, error) {
	dsn := strings.TrimSpace(os.Getenv("FLOWBOARD_STATE_BACKEND_DSN"))
	if dsn != "" {
		return flowboard.BuildBlobStoreFromDSN(dsn)
	}
	profileDSN, err := storageProfileDefaultFromEnv()
	if err != nil {
		return nil, err
	}
	if profileDSN != "" {
		return flowboard.BuildBlobStoreFromDSN(profileDSN)
	}
	return nil, nil
}

func storageProfileDefaultFromEnv() (string, error) {
	profile := strings.ToLower(strings.TrimSpace(os.Getenv("FLOWBOARD_BACKEND_PROFILE")))
	switch profile {
	case "", "custom":
		return "", nil
	case "memory", "inmemory":
		return "memory://", nil
	case "durable-local", "local-durable":
		return "file://" + dataDirFromEnv(), nil
	case "production", "prod":
		productionDSN := strings.TrimSpace(os.Getenv("FLOWBOARD_PRODUCTION_DSN"))
		if productionDSN == "" {
			productionDSN = strings.TrimSpace(os.Getenv("FLOWBOARD_POSTGRES_DSN"))
		}
		if productionDSN == "" {
			return "", fmt.Errorf("FLOWBOARD_PRODUCTION_DSN or FLOWBOARD_POSTGRES_DSN is required when FLOWBOARD_BACKEND_PROFILE=%s", profile)
		}
		return productionDSN, nil
	default:
		return "", fmt.Errorf("unsupported FLOWBOARD_BACKEND_PROFILE: %s", profile)
	}
}

func dataDirFromEnv() string {
	dataDir := strings.TrimSpace(os.Getenv("FLOWBOARD_DATA_DIR"))
	if dataDir == "" {
		dataDir = ".flowboard"
	}
	return dataDir
}

func workspaceDirFromEnv() string {
	if dir := strings.TrimSpace(os.Getenv("FLOWBOARD_WORKSPACE_DIR")); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".openclaw", "workspace")
}

func sessionsDirFromEnv() string {
	if dir := strings.TrimSpace(os.Getenv("FLOWBOARD_SESSIONS_DIR")); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".openclaw", "agents", "main", "sessions")
}

func openclawConfigFromEnv() string {
	if path := strings.TrimSpace(os.Getenv("FLOWBOARD_OPENCLAW_CONFIG")); path != "" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".openclaw", "openclaw.json")
}

func assetsDirFromEnv() string {
	if dir := strings.TrimSpace(os.Getenv("FLOWBOARD_ASSETS_DIR")); dir != "" {
		return dir
	}
	return "app"
}

func int64Env(name string, fallback int64) int64 {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %d", name, raw, fallback)
		return fallback
	}
	return value
}

func durationEnv(name string, fallback time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("invalid %s=%q, using fallback %s", name, raw, fallback.String())
		return fallback
	}
	return value
}
