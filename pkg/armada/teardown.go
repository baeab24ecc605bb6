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
	"errors"
)

// TearDown destroys the client's controller or environment, picking the
// strongest teardown the generation offers. When jesEnabled is false
// and tryJES is set, it attempts to enable bulk controller teardown
// first, falling back to plain destruction when the generation lacks
// it. Teardown runs under an ignored soft deadline so cleanup still
// happens after a run overshoots.
func TearDown(ctx context.Context, client *Client, jesEnabled, tryJES bool) error {
	ctx = WithoutSoftDeadline(ctx)

	if jesEnabled {
		return client.KillController(ctx)
	}
	if tryJES {
		err := client.EnableJES(ctx)
		var notSupported *NotSupportedError
		switch {
		case err == nil:
			killErr := client.KillController(ctx)
			client.DisableJES(ctx)
			return killErr
		case errors.As(err, &notSupported):
			// No bulk teardown on this generation; destroy plainly.
		default:
			return err
		}
	}
	if err := client.DestroyEnvironment(ctx, false); err != nil {
		var procErr *ProcessError
		if !errors.As(err, &procErr) {
			return err
		}
		return client.DestroyEnvironment(ctx, true)
	}
	return nil
}
