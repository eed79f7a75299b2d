package timealloc

import (
	"testing"

	"knowtrace/internal/types"
)

func baseReq() types.TimeRequest {
	return types.TimeRequest{
		LearnerID:  "u1",
		QuestionID: "q1",
		BaseTimeMs: 30000,
		Mastery:    0.5,
		Difficulty: 0.5,
	}
}

func TestAllocate_Deterministic(t *testing.T) {
	req := baseReq()
	a := Allocate(req)
	b := Allocate(req)
	if a.FinalTimeMs != b.FinalTimeMs || a.Factor != b.Factor {
		t.Error("Allocate must be deterministic")
	}
}

func TestAllocate_StressAddsTime(t *testing.T) {
	calm := baseReq()
	calm.Stress = 0.1
	stressed := baseReq()
	stressed.Stress = 0.8

	if Allocate(stressed).FinalTimeMs <= Allocate(calm).FinalTimeMs {
		t.Error("stress should increase the budget")
	}
	// Mild stress is neutral.
	if Allocate(calm).Breakdown["stress"] != 1.0 {
		t.Errorf("stress factor below threshold should be 1.0, got %.3f",
			Allocate(calm).Breakdown["stress"])
	}
}

func TestAllocate_FatigueBounded(t *testing.T) {
	req := baseReq()
	req.Fatigue = 1.0
	if f := Allocate(req).Breakdown["fatigue"]; f > 1.3 {
		t.Errorf("fatigue factor %.3f exceeds 1.3", f)
	}
}

func TestAllocate_MasteryReducesTime(t *testing.T) {
	novice := baseReq()
	novice.Mastery = 0.1
	expert := baseReq()
	expert.Mastery = 0.9

	if Allocate(expert).FinalTimeMs >= Allocate(novice).FinalTimeMs {
		t.Error("high mastery should reduce the budget")
	}
}

func TestAllocate_DifficultyAddsTime(t *testing.T) {
	easy := baseReq()
	easy.Difficulty = 0.1
	hard := baseReq()
	hard.Difficulty = 0.9

	if Allocate(hard).FinalTimeMs <= Allocate(easy).FinalTimeMs {
		t.Error("difficulty should increase the budget")
	}
}

func TestAllocate_LongSession(t *testing.T) {
	short := baseReq()
	long := baseReq()
	long.ElapsedMs = 45 * 60 * 1000

	if Allocate(long).Breakdown["session"] <= Allocate(short).Breakdown["session"] {
		t.Error("long sessions should get a session cushion")
	}
}

func TestAllocate_DevicePenalties(t *testing.T) {
	desktop := baseReq()
	mobile := baseReq()
	mobile.Device = types.DeviceProfile{Class: types.DeviceMobile, SmallScreen: true, LowBandwidth: true}

	if Allocate(mobile).FinalTimeMs <= Allocate(desktop).FinalTimeMs {
		t.Error("mobile on a slow link should earn extra time")
	}
}

func TestAllocate_FloorAndCeiling(t *testing.T) {
	// base=100 puts the ceiling (800) under the floor; the floor wins.
	tiny := baseReq()
	tiny.BaseTimeMs = 100
	tiny.Mastery = 1.0
	a := Allocate(tiny)
	if a.FinalTimeMs != FloorMs {
		t.Errorf("final = %dms, want floor %dms", a.FinalTimeMs, FloorMs)
	}

	small := baseReq()
	small.BaseTimeMs = 2000
	small.Stress = 1
	small.Fatigue = 1
	small.Mastery = 0
	small.Difficulty = 1
	small.ElapsedMs = 60 * 60 * 1000
	small.Device = types.DeviceProfile{Class: types.DeviceMobile, LowBandwidth: true}
	a = Allocate(small)
	if a.FinalTimeMs > small.BaseTimeMs*CeilingMultiple {
		t.Errorf("final %dms above ceiling", a.FinalTimeMs)
	}
}

func TestAllocate_BreakdownComplete(t *testing.T) {
	a := Allocate(baseReq())
	for _, k := range []string{"stress", "fatigue", "mastery", "difficulty", "session", "device"} {
		if _, ok := a.Breakdown[k]; !ok {
			t.Errorf("breakdown missing %q", k)
		}
	}
}

func TestAllocate_DefaultBase(t *testing.T) {
	req := baseReq()
	req.BaseTimeMs = 0
	if Allocate(req).FinalTimeMs < FloorMs {
		t.Error("zero base should fall back to the default base time")
	}
}
