// Copyright 2026 PixelFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package main is the entry point for the PixelFlow Router service.
//
// The Router is the photo-edit orchestration service that:
// - Classifies edit requests and matches them to capable backends
// - Enforces per-user monthly credit budgets across subscription tiers
// - Serves repeated edits from a content-addressed result cache
// - Dispatches to image providers with retries and cost-aware fallback
//
// Usage:
//
//	./router
//
// Environment Variables:
//
//	CONFIG_PATH - configuration file path (default: config.yaml)
//	PORT - HTTP server port (overrides the config file)
//	JWT_SECRET - token signing secret (overrides the config file)
//
// For more information, see https://docs.pixelflow.dev
package main

import (
	"pixelflow/platform/router"
)

func main() {
	router.Run()
}
