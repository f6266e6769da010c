package testutils

import (
	"context"
	"fmt"
	"time"

	"github.com/saviobatista/globe-worker/internal/types"
)

// MockStateVector creates an 18-field state vector with a valid position
func MockStateVector(icao24 string, lat, lng, altitude, velocity, category float64) types.StateVector {
	v := make(types.StateVector, 18)
	v[types.FieldICAO24] = icao24
	v[types.FieldLatitude] = lat
	v[types.FieldLongitude] = lng
	v[types.FieldAltitude] = altitude
	v[types.FieldValidity] = 1.0
	v[types.FieldVelocity] = velocity
	v[types.FieldCategory] = category
	return v
}

// MockStatesMessage creates a batch of n valid state vectors
func MockStatesMessage(n int) *types.StatesMessage {
	msg := &types.StatesMessage{States: make([]types.StateVector, 0, n)}
	for i := 0; i < n; i++ {
		msg.States = append(msg.States, MockStateVector(
			fmt.Sprintf("abc%03d", i),
			40.0+float64(i)/10,
			-74.0-float64(i)/10,
			float64(1000*(i+1)),
			200+float64(i),
			float64(i%8),
		))
	}
	return msg
}

// WaitForCondition waits for a condition to be true with timeout
func WaitForCondition(condition func() bool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for condition")
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}
