package engine

import (
	"testing"

	"portatil/internal/fixedpoint"
	"portatil/internal/video"
)

func testSprite() video.Image {
	return video.Image{Width: 16, Height: 16, Data: make([]uint8, 16*16)}
}

func TestGetSpriteAllocatesAndFrees(t *testing.T) {
	e := New(video.New())

	s1 := e.GetSprite(testSprite())
	s2 := e.GetSprite(testSprite())
	if s1 == nil || s2 == nil {
		t.Fatalf("expected two sprites to allocate")
	}
	if s1.Index != 0 || s2.Index != 1 {
		t.Fatalf("unexpected sprite indices: %d, %d", s1.Index, s2.Index)
	}

	e.ReleaseSprite(s1)
	s3 := e.GetSprite(testSprite())
	if s3.Index != 0 {
		t.Fatalf("freed slot 0 should be reused, got index %d", s3.Index)
	}
}

func TestSpritePoolExhaustion(t *testing.T) {
	e := New(video.New())
	for i := 0; i < MaxSprites; i++ {
		if e.GetSprite(testSprite()) == nil {
			t.Fatalf("sprite %d should have allocated", i)
		}
	}
	if e.GetSprite(testSprite()) != nil {
		t.Fatalf("pool should be exhausted")
	}
}

func TestEntityCollision(t *testing.T) {
	e := New(video.New())
	sprite := e.GetSprite(testSprite())
	sprite.FrameWidth = 16
	sprite.FrameHeight = 16

	a := e.GetEntity(0, 1, sprite, fixedpoint.FromInt(0), fixedpoint.FromInt(0))
	b := e.GetEntity(0, 2, sprite, fixedpoint.FromInt(8), fixedpoint.FromInt(8))

	if got := e.GetCollidingEntity(a, 2); got != b {
		t.Fatalf("expected a to collide with b")
	}

	c := e.GetEntity(0, 2, sprite, fixedpoint.FromInt(100), fixedpoint.FromInt(100))
	_ = c
	if got := e.GetCollidingEntity(a, 3); got != nil {
		t.Fatalf("expected no collision for an absent type ID")
	}
}

func TestEntityCollisionSkipsSelf(t *testing.T) {
	e := New(video.New())
	sprite := e.GetSprite(testSprite())
	sprite.FrameWidth = 16
	sprite.FrameHeight = 16

	a := e.GetEntity(0, 5, sprite, fixedpoint.FromInt(0), fixedpoint.FromInt(0))
	if got := e.GetCollidingEntity(a, 5); got != nil {
		t.Fatalf("an entity should never collide with itself")
	}
}

func TestReleaseEntityDeferredSwapRemove(t *testing.T) {
	e := New(video.New())
	sprite := e.GetSprite(testSprite())
	sprite.FrameWidth = 16
	sprite.FrameHeight = 16

	first := e.GetEntity(0, 100, sprite, fixedpoint.FromInt(0), fixedpoint.FromInt(0))
	second := e.GetEntity(0, 200, sprite, fixedpoint.FromInt(10), fixedpoint.FromInt(0))
	third := e.GetEntity(0, 300, sprite, fixedpoint.FromInt(20), fixedpoint.FromInt(0))
	_ = third

	if e.GetNumberOfEntities(0) != 3 {
		t.Fatalf("expected 3 live entities")
	}

	e.ReleaseEntity(first)
	if e.GetNumberOfEntities(0) != 3 {
		t.Fatalf("release should be deferred until Sync")
	}

	e.Sync(fixedpoint.One)

	if e.GetNumberOfEntities(0) != 2 {
		t.Fatalf("expected 2 live entities after sync, got %d", e.GetNumberOfEntities(0))
	}

	remaining := e.GetEntityByIndex(0, 0)
	if remaining.TypeID != 300 {
		t.Fatalf("expected the last live entity to have been swapped into slot 0, got type %d", remaining.TypeID)
	}
	if remaining.Index != 0 {
		t.Fatalf("swapped-in entity should keep slot 0's own identity index, got %d", remaining.Index)
	}

	other := e.GetEntityByIndex(0, 1)
	if other.TypeID != 200 {
		t.Fatalf("untouched entity should remain at its slot")
	}
	_ = second
}

func TestIsEntityOnScreen(t *testing.T) {
	e := New(video.New())
	sprite := e.GetSprite(testSprite())
	sprite.FrameWidth = 16
	sprite.FrameHeight = 16

	onScreen := e.GetEntity(0, 1, sprite, fixedpoint.FromInt(10), fixedpoint.FromInt(10))
	if !IsEntityOnScreen(onScreen) {
		t.Fatalf("entity within bounds should be on screen")
	}

	offScreen := e.GetEntity(0, 1, sprite, fixedpoint.FromInt(1000), fixedpoint.FromInt(1000))
	if IsEntityOnScreen(offScreen) {
		t.Fatalf("entity far outside bounds should not be on screen")
	}
}

func TestFindEntityIndexByOccurrence(t *testing.T) {
	e := New(video.New())
	sprite := e.GetSprite(testSprite())
	sprite.FrameWidth = 16
	sprite.FrameHeight = 16

	e.GetEntity(0, 7, sprite, fixedpoint.FromInt(0), fixedpoint.FromInt(0))
	e.GetEntity(0, 9, sprite, fixedpoint.FromInt(0), fixedpoint.FromInt(0))
	e.GetEntity(0, 7, sprite, fixedpoint.FromInt(0), fixedpoint.FromInt(0))

	if got := e.FindEntityIndex(0, 7, 1); got != 0 {
		t.Fatalf("FindEntityIndex(7, 1st) = %d, want 0", got)
	}
	if got := e.FindEntityIndex(0, 7, 2); got != 2 {
		t.Fatalf("FindEntityIndex(7, 2nd) = %d, want 2", got)
	}
	if got := e.FindEntityIndex(0, 7, 3); got != -1 {
		t.Fatalf("FindEntityIndex(7, 3rd) = %d, want -1 (only two exist)", got)
	}
	if got := e.FindEntityIndex(0, 7, 0); got != -1 {
		t.Fatalf("FindEntityIndex with occurrence 0 should always be -1, got %d", got)
	}
}
