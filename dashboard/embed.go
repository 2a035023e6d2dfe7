// Package dashboard provides the embedded web UI for the PulseDeck mirror
// server.
//
// The page subscribes to the mirror's /api/sse stream and renders the
// session, connection mode, services and recent events. It is compiled into
// the binary so the mirror needs no external files.
package dashboard

import "embed"

// Assets is an embedded filesystem containing the dashboard web UI.
//
// The filesystem structure is:
//
//	assets/
//	  index.html    - Mirror page with inline CSS and JavaScript
//
//go:embed assets/*
var Assets embed.FS
