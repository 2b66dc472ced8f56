// SPDX-License-Identifier: AGPL-3.0-or-later
// DMRHub - Run a DMR network server in a single binary
// Copyright (C) 2023-2026 Jacob McSwain
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// The source code is available at <https://github.com/dvm-project/fne>

// Package httpmw holds the small set of gin middleware shared by the
// admin and pprof HTTP surfaces.
package httpmw

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TracingProvider annotates the current span (if one is recording, i.e. the
// caller has already wired otelgin) with the request's method and path.
// otlpEndpoint gates this the same way the rest of the FNE gates tracing:
// an empty endpoint means tracing is disabled and this is a no-op.
func TracingProvider(otlpEndpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if otlpEndpoint != "" {
			span := trace.SpanFromContext(c.Request.Context())
			if span.IsRecording() {
				span.SetAttributes(
					attribute.String("http.method", c.Request.Method),
					attribute.String("http.path", c.Request.URL.Path),
				)
			}
		}
		c.Next()
	}
}
