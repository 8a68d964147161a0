// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package mux

import (
	"bytes"
	"context"
	"testing"
)

func TestWriteSessionQueuesBeforeRootFlush(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriteSession(context.Background(), &buf)

	id := s.AllocChannel()
	if err := s.SendFrame(id, []byte("early")); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("frame written before root flush: %q", buf.String())
	}
	if err := s.FlushRoot(); err != nil {
		t.Fatalf("FlushRoot: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("pending frame not drained after FlushRoot")
	}
	if err := s.SendFrame(id, []byte("late")); err != nil {
		t.Fatalf("SendFrame after flush: %v", err)
	}
	want := "\x00\x00early\x00\x00late"
	if buf.String() != want {
		t.Fatalf("buf=%q want %q", buf.String(), want)
	}
}

func TestChannelIDsSequential(t *testing.T) {
	s := NewWriteSession(context.Background(), &bytes.Buffer{})
	ids := []uint16{s.AllocChannel(), s.AllocChannel(), s.AllocChannel()}
	for i, id := range ids {
		if int(id) != i {
			t.Fatalf("ids=%v want sequential from 0", ids)
		}
	}
}

func TestReadSessionQuiescesOnNaturalCompletion(t *testing.T) {
	s := NewReadSession()
	calls := 0
	s.Register(0, func() (bool, error) {
		calls++
		return true, nil
	})
	select {
	case <-s.Quiesced():
		t.Fatalf("quiesced before dispatch")
	default:
	}
	if _, err := s.Dispatch(0); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	select {
	case <-s.Quiesced():
	default:
		t.Fatalf("not quiesced after last handler completed")
	}
}

func TestReadSessionReleaseQuiescesImmediately(t *testing.T) {
	s := NewReadSession()
	s.Register(7, func() (bool, error) { return false, nil })
	s.Release(7)
	select {
	case <-s.Quiesced():
	default:
		t.Fatalf("not quiesced after Release of the only handle")
	}
}

func TestReadSessionUnknownChannelIsProtocolError(t *testing.T) {
	s := NewReadSession()
	if _, err := s.Dispatch(99); err != errUnknownChannel {
		t.Fatalf("err=%v want errUnknownChannel", err)
	}
}

func TestReadSessionMultipleHandlesNeedAllReleased(t *testing.T) {
	s := NewReadSession()
	s.Register(1, func() (bool, error) { return false, nil })
	s.Register(2, func() (bool, error) { return false, nil })
	s.Release(1)
	select {
	case <-s.Quiesced():
		t.Fatalf("quiesced with one handle still open")
	default:
	}
	s.Release(2)
	select {
	case <-s.Quiesced():
	default:
		t.Fatalf("not quiesced after both released")
	}
}
