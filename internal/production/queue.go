package production

import (
	"container/heap"
	"time"
)

// jobQueue is a min-heap of running jobs ordered by EndTime.
type jobQueue []*Job

func (q jobQueue) Len() int           { return len(q) }
func (q jobQueue) Less(i, j int) bool { return q[i].EndTime.Before(q[j].EndTime) }
func (q jobQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }

func (q *jobQueue) Push(x any) { *q = append(*q, x.(*Job)) }

func (q *jobQueue) Pop() any {
	old := *q
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return job
}

func (q *jobQueue) schedule(job *Job) { heap.Push(q, job) }

// remove drops a job from the queue, reporting whether it was queued.
func (q *jobQueue) remove(id JobID) bool {
	for i, job := range *q {
		if job.ID == id {
			heap.Remove(q, i)
			return true
		}
	}
	return false
}

// due pops every job that ends at or before now, earliest first.
func (q *jobQueue) due(now time.Time) []*Job {
	var done []*Job
	for q.Len() > 0 && !now.Before((*q)[0].EndTime) {
		done = append(done, heap.Pop(q).(*Job))
	}
	return done
}
