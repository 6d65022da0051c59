package graphics

import (
	"sync"
)

// meshQueues accumulates mesh-buffer lifecycle requests between ticks.
// Unlike the rest of the builder this is shared state: loader and
// gameplay goroutines enqueue directly, and the per-frame take moves
// ownership into the next frame def under the same short lock.
type meshQueues struct {
	mu       sync.Mutex
	creates  []MeshBuffer
	destroys []uint64
}

// EnqueueMeshCreate queues a GPU buffer upload for the next frame.
// Ownership of the buffer transfers here; the caller must not touch it
// again. Safe from any goroutine.
func (b *Builder) EnqueueMeshCreate(m MeshBuffer) {
	b.meshes.mu.Lock()
	b.meshes.creates = append(b.meshes.creates, m)
	b.meshes.mu.Unlock()
}

// EnqueueMeshDestroy queues a GPU buffer release for the next frame.
// Safe from any goroutine.
func (b *Builder) EnqueueMeshDestroy(id uint64) {
	b.meshes.mu.Lock()
	b.meshes.destroys = append(b.meshes.destroys, id)
	b.meshes.mu.Unlock()
}

func (q *meshQueues) take() ([]MeshBuffer, []uint64) {
	q.mu.Lock()
	creates, destroys := q.creates, q.destroys
	q.creates, q.destroys = nil, nil
	q.mu.Unlock()
	return creates, destroys
}
