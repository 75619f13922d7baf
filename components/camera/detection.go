package camera

import (
	"context"
	"time"

	goutils "go.viam.com/utils"

	"go.viam.com/runnercutter/logging"
	"go.viam.com/runnercutter/utils"
)

// DetectLaser queries the laser detector up to attempts times, waiting backoff between misses.
// When more than one laser is found, the first is used. A utils.ErrDetectionTimeout error is
// returned if the laser was never found.
func DetectLaser(
	ctx context.Context,
	cam Camera,
	attempts int,
	backoff time.Duration,
	logger logging.Logger,
) (LaserDetection, error) {
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && !goutils.SelectContextOrWait(ctx, backoff) {
			return LaserDetection{}, ctx.Err()
		}
		detections, err := cam.GetLaserDetection(ctx)
		if err != nil {
			return LaserDetection{}, err
		}
		if len(detections) > 0 {
			if len(detections) > 1 {
				logger.Infow("found more than 1 laser, using the first", "count", len(detections))
			}
			return detections[0], nil
		}
		logger.Debugw("laser not detected", "attempt", attempt+1, "attempts", attempts)
	}
	return LaserDetection{}, utils.NewDetectionTimeoutError("laser", attempts)
}
