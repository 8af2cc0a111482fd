package chat

// DeliverToSingle writes message to the connection at slot i. The registry
// lock is held for the write so the slot cannot be reused underneath it.
func (r *Registry) DeliverToSingle(message string, i int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deliverLocked(message, i)
}

// DeliverTo writes message to every occupied, registered slot except
// excluded, in slot order. It returns how many recipients were written to
// successfully; a failed recipient never stops the fan-out.
func (r *Registry) DeliverTo(message string, excluded int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fanOutLocked(message, excluded)
}

// BroadcastFrom prefixes text with the sender's name and fans it out to the
// other registered clients. Text from an unregistered sender is dropped and
// reported as -1.
func (r *Registry) BroadcastFrom(from int, text string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	name, ok := r.nameLocked(from)
	if !ok {
		return -1
	}
	return r.fanOutLocked("["+name+"] "+text, from)
}

// ReplyNames sends the name of every registered slot, one line each, to
// slot i. Names and the reply target come from the same locked view.
func (r *Registry) ReplyNames(i int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.nameLocked(i); !ok {
		return 0, ErrNotRegistered
	}
	sent := 0
	for j := range r.slots {
		if !r.slots[j].registered {
			continue
		}
		if err := r.deliverLocked(r.slots[j].name, i); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func (r *Registry) fanOutLocked(message string, excluded int) int {
	delivered := 0
	for i := range r.slots {
		if i == excluded || !r.slots[i].registered {
			continue
		}
		if err := r.deliverLocked(message, i); err != nil {
			continue
		}
		delivered++
	}
	return delivered
}

func (r *Registry) deliverLocked(message string, i int) error {
	if i < 0 || i >= len(r.slots) {
		return ErrSlotOutOfRange
	}
	s := &r.slots[i]
	if !s.occupied() {
		return ErrSlotVacant
	}
	if err := writeLine(s.conn, message, r.writeTimeout); err != nil {
		r.metrics.DeliveriesTotal.WithLabelValues("failed").Inc()
		if !isExpectedCloseError(err) {
			r.logger.Debug("delivery failed", "slot", i, "error", err)
		}
		return err
	}
	r.metrics.DeliveriesTotal.WithLabelValues("ok").Inc()
	return nil
}
