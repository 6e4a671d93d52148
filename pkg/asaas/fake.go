package asaas

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

var _ Gateway = (*Fake)(nil)

// Fake is an in-process Gateway for local runs and tests. It never talks to the
// network and issues predictable ids.
type Fake struct {
	mu        sync.Mutex
	charges   map[string]CreateQRCodeRequest
	transfers map[string]CreateTransferRequest
	fail      error
}

func NewFake() *Fake {
	return &Fake{
		charges:   make(map[string]CreateQRCodeRequest),
		transfers: make(map[string]CreateTransferRequest),
	}
}

// FailWith makes subsequent calls return err, nil restores normal behaviour.
func (f *Fake) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.fail = err
}

func (f *Fake) CreateQRCode(_ context.Context, in *CreateQRCodeRequest, out *CreateQRCodeResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail != nil {
		return f.fail
	}

	id := "pay_" + uuid.NewString()
	f.charges[id] = *in

	payload := fmt.Sprintf("00020101021226800014br.gov.bcb.pix2558pix.example/qr/%s5204000053039865802BR6304", id)
	*out = CreateQRCodeResponse{
		ID:           id,
		EncodedImage: base64.StdEncoding.EncodeToString([]byte(payload)),
		Payload:      payload,
	}

	return nil
}

func (f *Fake) CreateTransfer(_ context.Context, in *CreateTransferRequest, out *CreateTransferResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail != nil {
		return f.fail
	}

	id := "tr_" + uuid.NewString()
	f.transfers[id] = *in

	*out = CreateTransferResponse{
		ID:     id,
		Status: "PENDING",
	}

	return nil
}

// Charges returns number of created charges
func (f *Fake) Charges() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.charges)
}

// Transfers returns number of created transfers
func (f *Fake) Transfers() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.transfers)
}
