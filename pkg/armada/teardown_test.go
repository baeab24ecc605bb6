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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTearDownModernKillsController(t *testing.T) {
	c, _ := newTestClient(t, "2.0.1", ModernEnvironment, recorder)

	require.NoError(t, TearDown(context.Background(), c, true, false))
	calls := recordedCalls(t, c)
	assert.Equal(t, []string{"--show-log kill-controller foo -y"}, calls)
}

func TestTearDownSwallowsKillFailure(t *testing.T) {
	c, _ := newTestClient(t, "2.0.1", ModernEnvironment, recorder+"\nexit 1")

	require.NoError(t, TearDown(context.Background(), c, true, false))
	calls := recordedCalls(t, c)
	assert.Equal(t, []string{"--show-log kill-controller foo -y"}, calls)
}

func TestTearDownModernTryJES(t *testing.T) {
	c, _ := newTestClient(t, "2.0.1", ModernEnvironment, recorder)

	require.NoError(t, TearDown(context.Background(), c, false, true))
	calls := recordedCalls(t, c)
	assert.Equal(t, []string{"--show-log kill-controller foo -y"}, calls)
	assert.False(t, c.featureFlags.Has("jes"))
}

func TestTearDownLegacyTryJESFallsBack(t *testing.T) {
	c, _ := newTestClient(t, "1.25.0", LegacyEnvironment, recorder)

	require.NoError(t, TearDown(context.Background(), c, false, true))
	calls := recordedCalls(t, c)
	assert.Equal(t, []string{"--show-log destroy-environment foo -y"}, calls)
}

func TestTearDownLegacyPlainDestroy(t *testing.T) {
	c, _ := newTestClient(t, "1.25.0", LegacyEnvironment, recorder)

	require.NoError(t, TearDown(context.Background(), c, false, false))
	calls := recordedCalls(t, c)
	assert.Equal(t, []string{"--show-log destroy-environment foo -y"}, calls)
}

func TestTearDownRetriesWithForce(t *testing.T) {
	body := recorder + `
case "$*" in
*--force*) exit 0 ;;
*) exit 1 ;;
esac`
	c, _ := newTestClient(t, "1.25.0", LegacyEnvironment, body)

	require.NoError(t, TearDown(context.Background(), c, false, false))
	calls := recordedCalls(t, c)
	assert.Equal(t, []string{
		"--show-log destroy-environment foo -y",
		"--show-log destroy-environment foo --force -y",
	}, calls)
}

func TestTearDownForcedDestroyStillFails(t *testing.T) {
	c, _ := newTestClient(t, "1.25.0", LegacyEnvironment, recorder+"\nexit 1")

	err := TearDown(context.Background(), c, false, false)
	var procErr *ProcessError
	require.ErrorAs(t, err, &procErr)
	calls := recordedCalls(t, c)
	assert.Len(t, calls, 2)
}

func TestTearDownIgnoresSoftDeadline(t *testing.T) {
	c, _ := newTestClient(t, "2.0.1", ModernEnvironment, recorder)
	c.backend.softDeadline = time.Now().Add(-time.Hour)

	require.NoError(t, TearDown(context.Background(), c, true, false))
	calls := recordedCalls(t, c)
	assert.Len(t, calls, 1)
}
