package supervisor

import (
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/tgdrive/botmanager/internal/kv"
)

// Journal persists the pids of spawned workers so a restarted supervisor
// can stop the ones it lost track of. It is not the live table.
type Journal interface {
	Record(p Process) error
	Forget(botID string) error
	Entries() ([]Process, error)
}

type kvJournal struct {
	kv kv.KV
}

func NewKVJournal(store kv.KV) Journal {
	return &kvJournal{kv: store}
}

func (j *kvJournal) Record(p Process) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return j.kv.Set(p.BotID, data)
}

func (j *kvJournal) Forget(botID string) error {
	return j.kv.Delete(botID)
}

func (j *kvJournal) Entries() ([]Process, error) {
	var res []Process
	err := j.kv.ForEach(func(key string, value []byte) error {
		var p Process
		if err := json.Unmarshal(value, &p); err != nil {
			return errors.Wrapf(err, "decode journal entry %q", key)
		}
		res = append(res, p)
		return nil
	})
	return res, err
}

type nopJournal struct{}

func (nopJournal) Record(Process) error        { return nil }
func (nopJournal) Forget(string) error         { return nil }
func (nopJournal) Entries() ([]Process, error) { return nil, nil }
