// Copyright (C) 2024 The Dagu Authors
// SPDX-License-Identifier: GPL-3.0-or-later

package build

import "strings"

// Version, AppName are overridden at build time via -ldflags
// (-X github.com/runbookhq/runbookengine/internal/build.Version=...).
// Slug derives from AppName unless set explicitly; cmd/ uses it as the
// root command name.
var (
	Version = "dev"
	AppName = "RunbookEngine"
	Slug    = ""
)

func init() {
	if Slug == "" {
		Slug = strings.ToLower(AppName)
	}
}
