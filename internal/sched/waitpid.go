package sched

import "github.com/Metalgear47/Weenix/internal/errno"

// DoWaitpid implements do_waitpid's pid=-1 and pid>0 cases. pid=-1
// reaps any DEAD child; pid>0 reaps that specific child, failing with
// ECHILD if it is not one of p's children. A child that exists but
// isn't DEAD yet causes the caller to sleep on p's own wait channel
// and retry once woken by a child's exit.
func DoWaitpid(p *Proc, pid int, options int) (int, int, errno.Errno) {
	if options != 0 || pid == 0 || pid < -1 {
		return 0, 0, errno.EINVAL
	}

	for {
		p.mu.Lock()
		if len(p.Children) == 0 {
			p.mu.Unlock()
			return 0, 0, errno.ECHILD
		}

		idx := -1
		for i, c := range p.Children {
			if pid != -1 && c.Pid != pid {
				continue
			}
			if idx < 0 {
				idx = i
			}
			if c.getState() == ProcDead {
				idx = i
				break
			}
		}
		if idx < 0 {
			p.mu.Unlock()
			return 0, 0, errno.ECHILD
		}

		child := p.Children[idx]
		if child.getState() == ProcDead {
			p.Children = append(p.Children[:idx], p.Children[idx+1:]...)
			p.mu.Unlock()
			return reap(child)
		}
		p.mu.Unlock()

		p.Wait.Enqueue().Wait()
	}
}

// reap implements the deallocation the exit protocol deferred: tear
// down the child's address space and drop it from the global process
// table.
func reap(c *Proc) (int, int, errno.Errno) {
	c.Vmmap.Destroy()
	procTableMu.Lock()
	delete(procTable, c.Pid)
	procTableMu.Unlock()
	return c.Pid, c.ExitStatus, 0
}
