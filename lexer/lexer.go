package lexer

// Lexer scans XDR source text into tokens. Scanning never fails: bytes that
// do not begin any token are emitted as ILLEGAL tokens and the scan moves on,
// so the parser can treat them as recoverable syntax errors.
type Lexer struct {
	src  string
	cur  int // byte index of the next unread byte
	line int // 0-based
	col  int // 0-based byte column within line
}

// New creates a lexer over src.
func New(src string) *Lexer {
	return &Lexer{src: src}
}

// Scan tokenizes the whole input, terminating with an EOF token.
func (l *Lexer) Scan() []Token {
	var tokens []Token
	for {
		tok := l.next()
		tokens = append(tokens, tok)
		if tok.Kind == EOF {
			return tokens
		}
	}
}

func (l *Lexer) atEnd() bool { return l.cur >= len(l.src) }

func (l *Lexer) peek() byte {
	if l.atEnd() {
		return 0
	}
	return l.src[l.cur]
}

func (l *Lexer) peekAt(n int) byte {
	if l.cur+n >= len(l.src) {
		return 0
	}
	return l.src[l.cur+n]
}

// advance consumes one byte, keeping line/column tracking correct.
func (l *Lexer) advance() byte {
	b := l.src[l.cur]
	l.cur++
	if b == '\n' {
		l.line++
		l.col = 0
	} else {
		l.col++
	}
	return b
}

func (l *Lexer) pos() Position { return Position{Line: l.line, Col: l.col} }

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isIdentStart(b byte) bool {
	return b == '_' || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func isIdentPart(b byte) bool { return isIdentStart(b) || isDigit(b) }

// skipBlanks consumes whitespace and block comments. Comment contents are
// discarded but their bytes are consumed through advance so that positions of
// subsequent tokens stay correct across multi-line comments.
func (l *Lexer) skipBlanks() {
	for !l.atEnd() {
		switch b := l.peek(); {
		case b == ' ' || b == '\t' || b == '\r' || b == '\n':
			l.advance()
		case b == '/' && l.peekAt(1) == '*':
			l.advance()
			l.advance()
			for !l.atEnd() {
				if l.peek() == '*' && l.peekAt(1) == '/' {
					l.advance()
					l.advance()
					break
				}
				l.advance()
			}
		case b == '/' && l.peekAt(1) == '/':
			for !l.atEnd() && l.peek() != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *Lexer) next() Token {
	l.skipBlanks()
	start := l.pos()
	startByte := l.cur

	if l.atEnd() {
		return Token{Kind: EOF, Span: Span{Start: start, End: start}}
	}

	b := l.peek()

	// '%' at the start of a line introduces a passthrough directive: capture
	// the rest of the line as one opaque token. The trailing newline is left
	// for skipBlanks so line numbering stays in sync.
	if b == '%' && l.col == 0 {
		for !l.atEnd() && l.peek() != '\n' {
			l.advance()
		}
		return l.token(PASSTHROUGH, startByte, start)
	}

	if isIdentStart(b) {
		for !l.atEnd() && isIdentPart(l.peek()) {
			l.advance()
		}
		text := l.src[startByte:l.cur]
		kind := ID
		if kw, ok := keywords[text]; ok {
			kind = kw
		}
		return Token{Kind: kind, Text: text, Span: Span{Start: start, End: l.pos()}}
	}

	if isDigit(b) || (b == '-' && isDigit(l.peekAt(1))) {
		l.advance()
		if b == '0' && (l.peek() == 'x' || l.peek() == 'X') {
			l.advance()
			for !l.atEnd() && isHex(l.peek()) {
				l.advance()
			}
		} else {
			for !l.atEnd() && isDigit(l.peek()) {
				l.advance()
			}
		}
		return l.token(INTEGER, startByte, start)
	}

	if b == '"' {
		l.advance()
		for !l.atEnd() && l.peek() != '"' && l.peek() != '\n' {
			if l.peek() == '\\' && l.cur+1 < len(l.src) {
				l.advance()
			}
			l.advance()
		}
		if !l.atEnd() && l.peek() == '"' {
			l.advance()
			return l.token(QUOTED, startByte, start)
		}
		// Unterminated literal: emit what we have as an error token.
		return l.token(ILLEGAL, startByte, start)
	}

	l.advance()
	var kind Kind
	switch b {
	case '{':
		kind = LCURLY
	case '}':
		kind = RCURLY
	case '(':
		kind = LROUND
	case ')':
		kind = RROUND
	case '[':
		kind = LSQUARE
	case ']':
		kind = RSQUARE
	case ';':
		kind = SEMI
	case ',':
		kind = COMMA
	case ':':
		kind = COLON
	case '<':
		kind = LESS
	case '>':
		kind = GREATER
	case '=':
		kind = ASSIGN
	case '*':
		kind = STAR
	default:
		kind = ILLEGAL
	}
	return l.token(kind, startByte, start)
}

func (l *Lexer) token(kind Kind, startByte int, start Position) Token {
	return Token{
		Kind: kind,
		Text: l.src[startByte:l.cur],
		Span: Span{Start: start, End: l.pos()},
	}
}

func isHex(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'f') || (b >= 'A' && b <= 'F')
}
