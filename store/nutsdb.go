/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package store

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/nutsdb/nutsdb"

	"github.com/sabouaram/vaultmesh/errs"
)

const (
	bucketState = "state"
	bucketAudit = "audit"
	auditList   = "log"
)

type db struct {
	mu sync.Mutex
	n  *nutsdb.DB
}

// Open opens (creating if needed) the nutsdb database rooted at path.
func Open(path string) (Store, error) {
	n, err := nutsdb.Open(nutsdb.DefaultOptions, nutsdb.WithDir(path))
	if err != nil {
		return nil, errs.Wrap(errs.KindTransport, err, "opening state database %q", path)
	}
	return &db{n: n}, nil
}

// stateKey builds the (identity, key) primary key. NUL is a safe
// separator: identities are DNS names and keys come from a
// whitespace-split command line, neither can contain it.
func stateKey(identity, key string) []byte {
	k := make([]byte, 0, len(identity)+1+len(key))
	k = append(k, identity...)
	k = append(k, 0)
	k = append(k, key...)
	return k
}

func (d *db) SetState(identity, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.n.Update(func(tx *nutsdb.Tx) error {
		return tx.Put(bucketState, stateKey(identity, key), []byte(value), nutsdb.Persistent)
	})
	if err != nil {
		return errs.Wrap(errs.KindTransport, err, "persisting state %s/%s", identity, key)
	}
	return nil
}

func (d *db) GetState(identity, key string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var value string
	err := d.n.View(func(tx *nutsdb.Tx) error {
		e, err := tx.Get(bucketState, stateKey(identity, key))
		if err != nil {
			return err
		}
		value = string(e.Value)
		return nil
	})
	if err != nil {
		if errors.Is(err, nutsdb.ErrKeyNotFound) || errors.Is(err, nutsdb.ErrBucketNotFound) {
			return "", errs.New(errs.KindNotFound, "no state for %s/%s", identity, key)
		}
		return "", errs.Wrap(errs.KindTransport, err, "reading state %s/%s", identity, key)
	}
	return value, nil
}

func (d *db) Log(sender, topic, message string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	raw, err := json.Marshal(AuditRecord{
		Time:    time.Now().UTC(),
		Sender:  sender,
		Topic:   topic,
		Message: message,
	})
	if err != nil {
		return errs.Wrap(errs.KindTransport, err, "encoding audit record")
	}

	err = d.n.Update(func(tx *nutsdb.Tx) error {
		return tx.RPush(bucketAudit, []byte(auditList), raw)
	})
	if err != nil {
		return errs.Wrap(errs.KindTransport, err, "appending audit record")
	}
	return nil
}

func (d *db) AuditTail(n int) ([]AuditRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []AuditRecord
	err := d.n.View(func(tx *nutsdb.Tx) error {
		size, err := tx.LSize(bucketAudit, []byte(auditList))
		if err != nil {
			return err
		}
		start := size - n
		if n <= 0 || start < 0 {
			start = 0
		}
		items, err := tx.LRange(bucketAudit, []byte(auditList), start, size-1)
		if err != nil {
			return err
		}
		out = make([]AuditRecord, 0, len(items))
		for _, raw := range items {
			var rec AuditRecord
			if json.Unmarshal(raw, &rec) == nil {
				out = append(out, rec)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, nutsdb.ErrBucketNotFound) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.KindTransport, err, "reading audit log")
	}
	return out, nil
}

func (d *db) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.n.Close()
}
