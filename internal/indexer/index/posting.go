package index

// DocID is the position of a document in the list it was built from.
type DocID int

// Postings maps a document to the number of times one term occurs in it.
// Counts are always positive; a document without the term has no entry.
type Postings map[DocID]int

type Posting struct {
	DocID     DocID
	Frequency int
}

type PostingList []Posting

type TermEntry struct {
	Term     string
	Postings PostingList
}
