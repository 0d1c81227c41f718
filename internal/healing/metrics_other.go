//go:build !unix

package healing

func rssBytes() int64 {
	return 0
}
