package localize

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestTransform(t *testing.T) {
	t.Parallel()

	t.Run("identity pose is a no-op", func(t *testing.T) {
		t.Parallel()
		obs := []LandmarkObs{
			{ID: UnsetLandmarkID, X: 2, Y: 3},
			{ID: UnsetLandmarkID, X: -1, Y: 0.5},
		}
		got := Transform(obs, 0, 0, 0)
		assert.Empty(t, cmp.Diff(obs, got, approx))
	})

	t.Run("translation only", func(t *testing.T) {
		t.Parallel()
		obs := []LandmarkObs{{ID: UnsetLandmarkID, X: 1, Y: 1}}
		got := Transform(obs, 4, -2, 0)
		assert.InDelta(t, 5.0, got[0].X, 1e-12)
		assert.InDelta(t, -1.0, got[0].Y, 1e-12)
	})

	t.Run("quarter turn rotates sensor frame", func(t *testing.T) {
		t.Parallel()
		// Looking along +y: an observation straight ahead lands above the pose.
		obs := []LandmarkObs{{ID: UnsetLandmarkID, X: 2, Y: 0}}
		got := Transform(obs, 1, 1, math.Pi/2)
		assert.InDelta(t, 1.0, got[0].X, 1e-9)
		assert.InDelta(t, 3.0, got[0].Y, 1e-9)
	})

	t.Run("worked transform example", func(t *testing.T) {
		t.Parallel()
		// Pose (4, 5, -pi/2), observation (2, 2) -> map point (6, 3).
		got := Transform([]LandmarkObs{{X: 2, Y: 2}}, 4, 5, -math.Pi/2)
		assert.InDelta(t, 6.0, got[0].X, 1e-9)
		assert.InDelta(t, 3.0, got[0].Y, 1e-9)
	})

	t.Run("input slice is not modified and ids pass through", func(t *testing.T) {
		t.Parallel()
		obs := []LandmarkObs{{ID: 7, X: 1, Y: 2}}
		got := Transform(obs, 10, 10, 1.0)
		assert.Equal(t, LandmarkObs{ID: 7, X: 1, Y: 2}, obs[0])
		assert.Equal(t, 7, got[0].ID)
	})

	t.Run("distances are preserved", func(t *testing.T) {
		t.Parallel()
		obs := []LandmarkObs{{X: 1, Y: 2}, {X: -3, Y: 0.5}}
		got := Transform(obs, 12.5, -7, 2.1)
		want := Dist(obs[0].X, obs[0].Y, obs[1].X, obs[1].Y)
		assert.InDelta(t, want, Dist(got[0].X, got[0].Y, got[1].X, got[1].Y), 1e-9)
	})
}

func TestDataAssociation(t *testing.T) {
	t.Parallel()

	t.Run("assigns nearest candidate", func(t *testing.T) {
		t.Parallel()
		predicted := []LandmarkObs{
			{ID: 1, X: 0, Y: 0},
			{ID: 2, X: 10, Y: 0},
			{ID: 3, X: 0, Y: 10},
		}
		obs := []LandmarkObs{
			{ID: UnsetLandmarkID, X: 9, Y: 1},
			{ID: UnsetLandmarkID, X: 0.5, Y: 0.5},
			{ID: UnsetLandmarkID, X: -1, Y: 11},
		}
		DataAssociation(predicted, obs)
		assert.Equal(t, 2, obs[0].ID)
		assert.Equal(t, 1, obs[1].ID)
		assert.Equal(t, 3, obs[2].ID)
	})

	t.Run("tie goes to the first candidate", func(t *testing.T) {
		t.Parallel()
		predicted := []LandmarkObs{
			{ID: 5, X: -1, Y: 0},
			{ID: 6, X: 1, Y: 0},
		}
		obs := []LandmarkObs{{ID: UnsetLandmarkID, X: 0, Y: 0}}
		DataAssociation(predicted, obs)
		assert.Equal(t, 5, obs[0].ID)
	})

	t.Run("empty candidate set leaves observations untouched", func(t *testing.T) {
		t.Parallel()
		obs := []LandmarkObs{{ID: UnsetLandmarkID, X: 1, Y: 1}}
		DataAssociation(nil, obs)
		assert.Equal(t, UnsetLandmarkID, obs[0].ID)
	})

	t.Run("coordinates are never modified", func(t *testing.T) {
		t.Parallel()
		predicted := []LandmarkObs{{ID: 1, X: 3, Y: 4}}
		obs := []LandmarkObs{{ID: UnsetLandmarkID, X: 2.5, Y: 4.5}}
		DataAssociation(predicted, obs)
		assert.Equal(t, 2.5, obs[0].X)
		assert.Equal(t, 4.5, obs[0].Y)
	})
}

func TestFindLandmarksInRange(t *testing.T) {
	t.Parallel()

	landmarks := []Landmark{
		{ID: 1, X: 3, Y: 4},   // dist 5
		{ID: 2, X: 6, Y: 8},   // dist 10
		{ID: 3, X: -5, Y: 12}, // dist 13
	}

	t.Run("boundary is inclusive", func(t *testing.T) {
		t.Parallel()
		got := FindLandmarksInRange(0, 0, 5, landmarks)
		require.Len(t, got, 1)
		assert.Equal(t, 1, got[0].ID)
	})

	t.Run("map order preserved", func(t *testing.T) {
		t.Parallel()
		got := FindLandmarksInRange(0, 0, 13, landmarks)
		require.Len(t, got, 3)
		assert.Equal(t, []int{1, 2, 3}, []int{got[0].ID, got[1].ID, got[2].ID})
	})

	t.Run("none in range yields empty slice", func(t *testing.T) {
		t.Parallel()
		got := FindLandmarksInRange(100, 100, 1, landmarks)
		assert.Empty(t, got)
	})
}

func TestMultivGaussianProb(t *testing.T) {
	t.Parallel()

	std := [2]float64{0.3, 0.3}

	t.Run("peak at the prediction", func(t *testing.T) {
		t.Parallel()
		p := LandmarkObs{ID: 1, X: 5, Y: 5}
		got := MultivGaussianProb(p, LandmarkObs{X: 5, Y: 5}, std)
		want := 1.0 / (2.0 * math.Pi * 0.3 * 0.3)
		assert.InDelta(t, want, got, 1e-12)
	})

	t.Run("symmetric around the prediction", func(t *testing.T) {
		t.Parallel()
		p := LandmarkObs{ID: 1, X: 0, Y: 0}
		left := MultivGaussianProb(p, LandmarkObs{X: -0.2, Y: 0.1}, std)
		right := MultivGaussianProb(p, LandmarkObs{X: 0.2, Y: -0.1}, std)
		assert.InDelta(t, left, right, 1e-15)
	})

	t.Run("decreases with distance", func(t *testing.T) {
		t.Parallel()
		p := LandmarkObs{ID: 1, X: 0, Y: 0}
		near := MultivGaussianProb(p, LandmarkObs{X: 0.1, Y: 0}, std)
		far := MultivGaussianProb(p, LandmarkObs{X: 0.5, Y: 0}, std)
		assert.Greater(t, near, far)
	})

	t.Run("known density value", func(t *testing.T) {
		t.Parallel()
		// Observation (6, 3) against landmark (5, 3) with sigma (0.3, 0.3).
		got := MultivGaussianProb(LandmarkObs{X: 5, Y: 3}, LandmarkObs{X: 6, Y: 3}, std)
		assert.InDelta(t, 6.84e-3, got, 1e-4)
	})
}

func TestDist(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 5.0, Dist(0, 0, 3, 4), 1e-12)
	assert.Zero(t, Dist(2, 2, 2, 2))
}

func TestNormalizeAngle(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 0.0, NormalizeAngle(2*math.Pi), 1e-12)
	assert.InDelta(t, math.Pi/2, NormalizeAngle(-math.Pi/2), 1e-12)
	assert.InDelta(t, math.Pi/2, NormalizeAngle(3*math.Pi/2), 1e-12)
	assert.InDelta(t, math.Pi, NormalizeAngle(math.Pi), 1e-12)
	assert.InDelta(t, 0.1, NormalizeAngle(4*math.Pi+0.1), 1e-9)
}
