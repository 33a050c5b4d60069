package persistence

import (
	"encoding/json"
	"os"
	"path"
	"time"
)

// DataFile is a JSON archival file written under a data directory.
type DataFile struct {
	// Prefix is the data directory.
	Prefix string
	// Datatype is the first path element under Prefix (e.g. "report").
	Datatype string
	// Subtest is a free-form qualifier embedded in the file name.
	Subtest string
	// UUID is the run identifier embedded in the file name.
	UUID string
	// Path is the full path of the written file.
	Path string
	// Size is the number of bytes written.
	Size int
}

func newDataFile(datadir, datatype, subtest, uuid string) (*DataFile, *os.File, error) {
	timestamp := time.Now()
	dir := path.Join(datadir, datatype, timestamp.Format("2006/01/02"))
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, nil, err
	}
	filepath := path.Join(dir, datatype+"-"+subtest+"-"+
		timestamp.Format("20060102T150405.000000000Z")+"."+uuid+".json")
	fp, err := os.OpenFile(filepath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, nil, err
	}
	return &DataFile{
		Prefix:   datadir,
		Datatype: datatype,
		Subtest:  subtest,
		UUID:     uuid,
		Path:     filepath,
	}, fp, nil
}

// WriteDataFile writes a JSON representation of result to a new file in
// datadir/datatype/YYYY/MM/DD and syncs it to disk.
func WriteDataFile(datadir, datatype, subtest, uuid string, result interface{}) (*DataFile, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	df, fp, err := newDataFile(datadir, datatype, subtest, uuid)
	if err != nil {
		return nil, err
	}
	n, err := fp.Write(data)
	if err != nil {
		fp.Close()
		return nil, err
	}
	df.Size = n
	if err = fp.Sync(); err != nil {
		fp.Close()
		return nil, err
	}
	return df, fp.Close()
}

// WriteJSONFile writes an indented JSON representation of v to p,
// replacing any existing file.
func WriteJSONFile(p string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if err = os.MkdirAll(path.Dir(p), 0755); err != nil {
		return err
	}
	fp, err := os.Create(p)
	if err != nil {
		return err
	}
	if _, err = fp.Write(data); err != nil {
		fp.Close()
		return err
	}
	if err = fp.Sync(); err != nil {
		fp.Close()
		return err
	}
	return fp.Close()
}
