package dataset

import (
	"sync"
)

type imageJob struct {
	path string
	img  Image
}

// imageWriter encodes PNG frames on a fixed number of goroutines. With zero
// threads frames are written synchronously by the caller.
type imageWriter struct {
	threads int
	jobs    chan imageJob
	workers sync.WaitGroup
	pending sync.WaitGroup
	once    sync.Once

	mu      sync.Mutex
	err     error
	written int
}

func newImageWriter(threads int) *imageWriter {
	w := &imageWriter{threads: threads}
	if threads <= 0 {
		return w
	}
	w.jobs = make(chan imageJob, 2*threads)
	for i := 0; i < threads; i++ {
		w.workers.Add(1)
		go func() {
			defer w.workers.Done()
			for job := range w.jobs {
				w.record(writePNG(job.path, job.img))
				w.pending.Done()
			}
		}()
	}
	return w
}

func (w *imageWriter) enqueue(path string, img Image) {
	if w.threads <= 0 {
		w.record(writePNG(path, img))
		return
	}
	w.pending.Add(1)
	w.jobs <- imageJob{path: path, img: img}
}

func (w *imageWriter) record(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		if w.err == nil {
			w.err = err
		}
		return
	}
	w.written++
}

// wait blocks until every queued image is written and returns the first
// error since the previous wait.
func (w *imageWriter) wait() error {
	w.pending.Wait()
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.err
	w.err = nil
	return err
}

// count returns the number of images written so far.
func (w *imageWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

func (w *imageWriter) stop() {
	w.once.Do(func() {
		if w.jobs != nil {
			close(w.jobs)
		}
		w.workers.Wait()
	})
}
