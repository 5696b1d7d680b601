package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"chat-core/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/olekukonko/tablewriter"
)

// badger_inspect dumps the records under a key prefix in a readable
// table. Handy when a test leaves a store behind and the question is
// "what exactly is in there".
//
//	go run ./tools -db /tmp/chat-core -prefix room:
//	go run ./tools -db /tmp/chat-core -prefix "msg:room:<uuid>:"
func main() {
	dbPath := flag.String("db", "/tmp/chat-core", "Path to badger DB")
	prefix := flag.String("prefix", "room:", "Prefix to scan (room:, member:, msg:, msgid:)")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "ID", "Owner", "Detail", "Created"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())
			err := item.Value(func(v []byte) error {
				table.Append(describe(key, v))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal(err)
	}

	table.Render()
}

// describe decodes a record by its key namespace. Undecodable values are
// reported raw instead of aborting the whole scan.
func describe(key string, value []byte) []string {
	switch {
	case strings.HasPrefix(key, "room:"):
		var room domain.Room
		if err := cbor.Unmarshal(value, &room); err != nil {
			return rawRow(key, value, err)
		}
		detail := room.Name
		if room.Deleted() {
			detail += " (deleted)"
		}
		return []string{key, "ROOM", short(room.ID.String()), room.CreatedBy, detail, room.CreatedAt.Format("15:04:05")}

	case strings.HasPrefix(key, "member:"):
		var membership domain.Membership
		if err := cbor.Unmarshal(value, &membership); err != nil {
			return rawRow(key, value, err)
		}
		detail := "member"
		if membership.IsAdmin {
			detail = "admin"
		}
		return []string{key, "MEMBER", short(membership.RoomID.String()), membership.UserID, detail, membership.JoinedAt.Format("15:04:05")}

	case strings.HasPrefix(key, "msgid:"):
		return []string{key, "INDEX", "-", "-", string(value), "-"}

	case strings.HasPrefix(key, "msg:"):
		var message domain.Message
		if err := cbor.Unmarshal(value, &message); err != nil {
			return rawRow(key, value, err)
		}
		detail := message.Content
		if len(detail) > 40 {
			detail = detail[:40] + "..."
		}
		if message.Deleted() {
			detail += " (deleted)"
		}
		return []string{key, "MESSAGE", short(message.ID.String()), message.SenderID, detail, message.CreatedAt.Format("15:04:05")}
	}
	return rawRow(key, value, nil)
}

func rawRow(key string, value []byte, err error) []string {
	detail := fmt.Sprintf("%d bytes", len(value))
	if err != nil {
		detail += " (" + err.Error() + ")"
	}
	return []string{key, "RAW", "-", "-", detail, "-"}
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true).
		WithValueLogFileSize(10 * 1024 * 1024)

	return badger.Open(opts)
}
