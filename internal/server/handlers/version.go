package handlers

import (
	"net/http"
	"sync"

	"github.com/3leaps/gocrack/pkg/api"
)

var (
	buildMu   sync.RWMutex
	buildInfo = api.VersionResponse{Version: "dev", Commit: "unknown", BuildDate: "unknown"}
)

// SetBuildInfo records the build metadata served at /version.
func SetBuildInfo(version, commit, buildDate string) {
	buildMu.Lock()
	defer buildMu.Unlock()
	buildInfo = api.VersionResponse{Version: version, Commit: commit, BuildDate: buildDate}
}

// VersionHandler serves the build metadata.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	buildMu.RLock()
	info := buildInfo
	buildMu.RUnlock()
	writeJSON(w, http.StatusOK, info)
}
