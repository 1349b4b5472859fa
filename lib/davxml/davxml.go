// Package davxml builds the WebDAV multistatus documents this server
// hands back from PROPFIND, MKCOL, and SUBSCRIBE.
package davxml

import (
	"encoding/xml"
	"os"
	"strconv"
	"strings"
	"time"
)

const iso8601 = "2006-01-02T15:04:05Z"

// Entry describes one file or directory to report in a multistatus
// document. Href is the entry's path relative to the root, in URL
// style (leading "/", POSIX separators); Absolute is the filesystem
// path to stat.
type Entry struct {
	Href     string
	Absolute string
}

// Build renders a multistatus document for the given entries. cursor, if
// non-nil, is echoed as a <td:cursor> element. We write tokens directly
// rather than via xml.Marshal so that directory and file entries get the
// exact self-closing-vs-valued getcontentlength/resourcetype shapes the
// client expects.
func Build(entries []Entry, cursor *int64) ([]byte, error) {
	var buf strings.Builder
	buf.WriteString(xml.Header)
	buf.WriteString(`<d:multistatus xmlns:d="DAV:" xmlns:td="http://dav.tampermonkey.net/ns">` + "\n")

	for _, e := range entries {
		writeResponse(&buf, e)
	}

	if cursor != nil {
		buf.WriteString("  <td:cursor>")
		buf.WriteString(strconv.FormatInt(*cursor, 10))
		buf.WriteString("</td:cursor>\n")
	}

	buf.WriteString("</d:multistatus>\n")
	return []byte(buf.String()), nil
}

func writeResponse(buf *strings.Builder, e Entry) {
	info, err := os.Stat(e.Absolute)

	var size int64 = -1
	mtime := time.Now().UTC()
	isDir := false
	if err == nil {
		size = info.Size()
		mtime = info.ModTime().UTC()
		isDir = info.IsDir()
	}

	buf.WriteString("  <d:response>\n")
	buf.WriteString("    <d:href>")
	xml.EscapeText(buf, []byte(e.Href))
	buf.WriteString("</d:href>\n")
	buf.WriteString("    <d:propstat>\n")
	buf.WriteString("      <d:prop>\n")
	if isDir {
		buf.WriteString("        <d:resourcetype><d:collection/></d:resourcetype>\n")
		buf.WriteString("        <d:getcontentlength />\n")
	} else {
		buf.WriteString("        <d:resourcetype />\n")
		buf.WriteString("        <d:getcontentlength>")
		buf.WriteString(strconv.FormatInt(size, 10))
		buf.WriteString("</d:getcontentlength>\n")
	}
	buf.WriteString("        <d:getlastmodified>")
	buf.WriteString(mtime.Format(iso8601))
	buf.WriteString("</d:getlastmodified>\n")
	buf.WriteString("      </d:prop>\n")
	buf.WriteString("      <d:status>HTTP/1.1 200 OK</d:status>\n")
	buf.WriteString("    </d:propstat>\n")
	buf.WriteString("  </d:response>\n")
}

// Href builds a URL-style href from a root-relative POSIX path, per the
// open question in the design notes: the root itself is rendered "/".
func Href(relative string) string {
	if relative == "" || relative == "." {
		return "/"
	}
	return "/" + strings.TrimPrefix(relative, "/")
}
