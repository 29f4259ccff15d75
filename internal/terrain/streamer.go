package terrain

import (
	"math"
	"sort"
)

// Changes изменения набора резидентных чанков с прошлого Process
type Changes struct {
	Ready   []*Chunk // Завершённые чанки, которые нужно передать физике
	Evicted []int    // Индексы выгруженных чанков
}

// Empty нет изменений
func (c Changes) Empty() bool {
	return len(c.Ready) == 0 && len(c.Evicted) == 0
}

// Streamer управляет жизненным циклом чанков вокруг актёра.
// Чанки хранятся по индексу; незавершённые живут в очереди генерации.
// Не потокобезопасен: используется только из цикла симуляции.
type Streamer struct {
	gen     *Generator
	chunks  map[int]*Chunk
	pending map[int]*genJob
	queue   []int // FIFO очередь генерации

	ready   []*Chunk
	evicted []int
}

// NewStreamer создаёт стример поверх генератора
func NewStreamer(gen *Generator) *Streamer {
	return &Streamer{
		gen:     gen,
		chunks:  make(map[int]*Chunk),
		pending: make(map[int]*genJob),
	}
}

// Generator генератор стримера
func (s *Streamer) Generator() *Generator {
	return s.gen
}

// Window вычисляет диапазон индексов чанков, пересекающих окно удержания вокруг x
func (s *Streamer) Window(actorX float64) (lo, hi int) {
	cfg := s.gen.Config()
	return s.gen.IndexAt(actorX - cfg.TrailingMargin), s.gen.IndexAt(actorX + cfg.LookaheadMargin)
}

// Update запрашивает чанки окна вокруг actorX и выгружает всё, что вне окна
func (s *Streamer) Update(actorX float64) {
	lo, hi := s.Window(actorX)

	for i := lo; i <= hi; i++ {
		s.request(i)
	}

	for index := range s.chunks {
		if index < lo || index > hi {
			delete(s.chunks, index)
			s.evicted = append(s.evicted, index)
		}
	}
	if len(s.pending) > 0 {
		kept := s.queue[:0]
		for _, index := range s.queue {
			if index < lo || index > hi {
				delete(s.pending, index)
				continue
			}
			kept = append(kept, index)
		}
		s.queue = kept
	}
}

func (s *Streamer) request(index int) {
	if _, ok := s.chunks[index]; ok {
		return
	}
	if _, ok := s.pending[index]; ok {
		return
	}
	s.pending[index] = s.gen.newJob(index)
	s.queue = append(s.queue, index)
}

// Process продвигает очередь генерации не более чем на SamplesPerTick отсчётов
// и возвращает накопленные изменения.
func (s *Streamer) Process() Changes {
	budget := s.gen.Config().SamplesPerTick
	remaining := budget

	for len(s.queue) > 0 {
		if budget > 0 && remaining <= 0 {
			break
		}
		index := s.queue[0]
		job := s.pending[index]
		step := 0
		if budget > 0 {
			step = remaining
		}
		remaining -= job.advance(step)
		if !job.done() {
			break
		}
		s.queue = s.queue[1:]
		delete(s.pending, index)
		s.chunks[index] = job.chunk
		s.ready = append(s.ready, job.chunk)
	}

	changes := Changes{Ready: s.ready, Evicted: s.evicted}
	s.ready = nil
	s.evicted = nil
	return changes
}

// Maintain Update + Process за один вызов
func (s *Streamer) Maintain(actorX float64) Changes {
	s.Update(actorX)
	return s.Process()
}

// Ensure синхронно генерирует чанк (используется для точки появления).
// Чанк не попадает в Changes: вызывающий передаёт его физике сам.
func (s *Streamer) Ensure(index int) *Chunk {
	if c, ok := s.chunks[index]; ok {
		return c
	}
	job, ok := s.pending[index]
	if ok {
		delete(s.pending, index)
		for i, q := range s.queue {
			if q == index {
				s.queue = append(s.queue[:i], s.queue[i+1:]...)
				break
			}
		}
	} else {
		job = s.gen.newJob(index)
	}
	job.advance(0)
	s.chunks[index] = job.chunk
	return job.chunk
}

// EnsureAround синхронно генерирует все чанки окна вокруг x
func (s *Streamer) EnsureAround(x float64) []*Chunk {
	lo, hi := s.Window(x)
	out := make([]*Chunk, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, s.Ensure(i))
	}
	return out
}

// Reset выгружает все чанки и очищает очередь
func (s *Streamer) Reset() {
	s.chunks = make(map[int]*Chunk)
	s.pending = make(map[int]*genJob)
	s.queue = nil
	s.ready = nil
	s.evicted = nil
}

// Chunk возвращает завершённый чанк по индексу
func (s *Streamer) Chunk(index int) (*Chunk, bool) {
	c, ok := s.chunks[index]
	return c, ok
}

// Chunks завершённые чанки, упорядоченные по индексу
func (s *Streamer) Chunks() []*Chunk {
	out := make([]*Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Resident количество завершённых чанков в памяти
func (s *Streamer) Resident() int {
	return len(s.chunks)
}

// Pending количество чанков в очереди генерации
func (s *Streamer) Pending() int {
	return len(s.queue)
}

// CollisionSegmentsNear отрезки коллизии в [x-radius, x+radius], упорядоченные по X.
// Незавершённые чанки не дают отрезков.
func (s *Streamer) CollisionSegmentsNear(x, radius float64) []Segment {
	x0, x1 := x-radius, x+radius
	var out []Segment
	for i := s.gen.IndexAt(x0); i <= s.gen.IndexAt(x1); i++ {
		c, ok := s.chunks[i]
		if !ok {
			continue
		}
		for _, seg := range c.Segments() {
			if seg.MaxX() < x0 || seg.MinX() > x1 {
				continue
			}
			out = append(out, seg)
		}
	}
	return out
}

// SurfaceAt высота поверхности в точке x, если чанк завершён
func (s *Streamer) SurfaceAt(x float64) (float64, bool) {
	c, ok := s.chunks[s.gen.IndexAt(x)]
	if !ok {
		return 0, false
	}
	return c.SurfaceAt(x)
}

// StepAhead подъём поверхности перед точкой x в направлении dir на расстоянии reach.
// Положительное значение - впереди выше (y вниз). ok=false, если чанки не готовы.
func (s *Streamer) StepAhead(x float64, dir int, reach float64) (float64, bool) {
	if dir == 0 || reach <= 0 {
		return 0, false
	}
	here, ok := s.SurfaceAt(x)
	if !ok {
		return 0, false
	}
	end := x + float64(dir)*reach
	highest := math.Inf(1)
	x0, x1 := math.Min(x, end), math.Max(x, end)
	for i := s.gen.IndexAt(x0); i <= s.gen.IndexAt(x1); i++ {
		c, ok := s.chunks[i]
		if !ok {
			return 0, false
		}
		if y, found := c.Highest(x0, x1); found && y < highest {
			highest = y
		}
	}
	if math.IsInf(highest, 1) {
		return 0, false
	}
	return here - highest, true
}
