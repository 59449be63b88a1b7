package qt

import "bytes"

// Classifier decides from the content of a file whether it needs moc
type Classifier interface {
	Classify(content []byte) bool
}

// MarkerClassifier looks for a token anywhere in the file, stopping at the first line that
// holds it
type MarkerClassifier struct {
	Token []byte
}

// QObject is the default trigger of moc
var QObject = MarkerClassifier{Token: []byte("Q_OBJECT")}

func (c MarkerClassifier) Classify(content []byte) bool {
	for line := range bytes.Lines(content) {
		if bytes.Contains(line, c.Token) {
			return true
		}
	}
	return false
}
