/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package armada

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// writeStub installs a fake armada binary running the given shell body.
func writeStub(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "armada")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func testEnv(kind EnvironmentKind) *Environment {
	return NewEnvironment("foo", kind, map[string]interface{}{
		"type":   "bar",
		"region": "baz",
	}, "/tmp/armada-test-home")
}

// newTestClient builds a client against a stub binary whose behavior is
// the given shell body. Sleeping and progress output are captured.
func newTestClient(t *testing.T, version string, kind EnvironmentKind, body string) (*Client, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	path := writeStub(t, dir, body)
	env := testEnv(kind)
	env.Home = filepath.Join(dir, "home")
	progress := &bytes.Buffer{}
	client, err := NewClient(ClientConfig{
		Env:      env,
		Version:  version,
		FullPath: path,
		Progress: progress,
	})
	require.NoError(t, err)
	client.sleep = func(time.Duration) {}
	return client, progress
}

// argClient builds a client for argument-construction tests; it never
// executes the binary.
func argClient(t *testing.T, version string, kind EnvironmentKind) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{
		Env:      testEnv(kind),
		Version:  version,
		FullPath: "/usr/local/bin/armada",
		Progress: &bytes.Buffer{},
	})
	require.NoError(t, err)
	return client
}
