package changelog

import (
	"sync"
	"time"
)

// Debouncer запускает fn один раз после задержки. Повторный Schedule до запуска
// отменяет предыдущий и ставит новый: в любой момент ожидает не больше одного запуска.
//
// Schedule, Pending и Stop вызываются под блокировкой mu. fn выполняется тоже под ней,
// поэтому fn может сам вызывать Schedule.
type Debouncer struct {
	mu      sync.Locker
	fn      func()
	timer   *time.Timer
	gen     uint64
	stopped bool
}

// NewDebouncer создаёт планировщик, разделяющий блокировку mu с вызывающим кодом.
func NewDebouncer(mu sync.Locker, fn func()) *Debouncer {
	return &Debouncer{mu: mu, fn: fn}
}

// Schedule отменяет ожидающий запуск и планирует новый через delay.
func (d *Debouncer) Schedule(delay time.Duration) {
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}

	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(delay, func() { d.fire(gen) })
}

// Pending сообщает, запланирован ли запуск.
func (d *Debouncer) Pending() bool {
	return d.timer != nil
}

// Stop отменяет ожидающий запуск; последующие Schedule игнорируются.
func (d *Debouncer) Stop() {
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// Таймер успел сработать, но пока ждал блокировку, его заменил более поздний Schedule.
	if d.stopped || gen != d.gen {
		return
	}
	d.timer = nil
	d.fn()
}
