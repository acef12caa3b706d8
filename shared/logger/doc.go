// Copyright 2026 PixelFlow
// SPDX-License-Identifier: Apache-2.0

/*
Package logger provides structured JSON logging with per-user attribution
for PixelFlow components.

# Overview

The logger package provides structured logging that outputs JSON to stdout,
making logs easily consumable by CloudWatch, ELK stack, or other log
aggregation systems.

Each log entry includes:
  - Timestamp (RFC3339Nano format)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (router, etc.)
  - Instance ID and container name (for distributed tracing)
  - User ID (for per-user support diagnosis)
  - Request ID (for request correlation)
  - Custom fields

# Usage

Create a logger for your component:

	log := logger.New("router")

Log messages with user and request context:

	log.Info("user-123", "req-456", "Processing edit request", map[string]interface{}{
	    "task":     "bg_remove",
	    "provider": "clipdrop",
	})

Log errors with status codes:

	log.ErrorWithCode("user-123", "req-456", "Request failed", 502, err, map[string]interface{}{
	    "endpoint": "/api/v1/edit",
	})

Log with duration tracking:

	start := time.Now()
	// ... do work ...
	log.InfoWithDuration("user-123", "req-456", "Request completed",
	    float64(time.Since(start).Milliseconds()), nil)

# Output Format

Log entries are output as single-line JSON:

	{"timestamp":"2026-01-15T10:30:00.123456789Z","level":"INFO",
	 "component":"router","instance_id":"i-abc123","container":"router-xyz",
	 "user_id":"user-123","request_id":"req-456",
	 "message":"Processing edit request","fields":{"task":"bg_remove"}}

# Environment Variables

The logger reads these environment variables:

  - INSTANCE_ID: Deployment instance identifier
  - HOSTNAME: Container hostname (auto-detected)

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
