package vagrant

import (
	"fmt"
	"strconv"
	"strings"
)

const machineReadableComma = "%!(VAGRANT_COMMA)"

// Record is one line of `vagrant --machine-readable` output:
// timestamp,target,type,data...
type Record struct {
	Timestamp int64
	Target    string
	Type      string
	Data      []string
}

func ParseMachineReadable(output []byte) ([]Record, error) {
	records := []Record{}
	for lineno, line := range strings.Split(string(output), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) < 3 {
			return nil, fmt.Errorf("line %d: expected at least 3 fields, got %d", lineno+1, len(fields))
		}
		timestamp, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad timestamp %q", lineno+1, fields[0])
		}
		record := Record{Timestamp: timestamp, Target: fields[1], Type: fields[2]}
		for _, field := range fields[3:] {
			field = strings.Replace(field, machineReadableComma, ",", -1)
			field = strings.Replace(field, `\n`, "\n", -1)
			record.Data = append(record.Data, field)
		}
		records = append(records, record)
	}
	return records, nil
}

// Find returns the data of the first record of the given type.
func Find(records []Record, recordType string) ([]string, bool) {
	for _, record := range records {
		if record.Type == recordType {
			return record.Data, true
		}
	}
	return nil, false
}
