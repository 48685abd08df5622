package scanner

// WorkItem is one page to fetch.
type WorkItem struct {
	URL      string
	Referrer string // page the link was found on, empty for start URLs
	Depth    int    // link hops from the start URL
}
