package template

import (
	"fmt"
	"math/rand"
)

// koreanFaker is a minimal Korean-locale identity generator. The ecosystem
// has no Go equivalent of python's Faker('ko_KR') (checked against the
// example corpus — see DESIGN.md); this hand-rolled generator is the
// documented stdlib exception for that one helper.
type koreanFaker struct {
	rng *rand.Rand
}

func newKoreanFaker(seed int64) *koreanFaker {
	return &koreanFaker{rng: rand.New(rand.NewSource(seed))}
}

var koreanSurnames = []string{"김", "이", "박", "최", "정", "강", "조", "윤", "장", "임"}

var koreanGivenNames = []string{
	"민준", "서연", "도윤", "하은", "시우", "지우", "주원", "서윤", "예준", "수빈",
}

var emailDomains = []string{"example.com", "mail.test", "webmail.kr"}

// Name returns a random full Korean name, e.g. "김민준".
func (f *koreanFaker) Name() string {
	return koreanSurnames[f.rng.Intn(len(koreanSurnames))] + koreanGivenNames[f.rng.Intn(len(koreanGivenNames))]
}

// Email returns a random ASCII-safe email address.
func (f *koreanFaker) Email() string {
	local := randomAlpha(f.rng, 8)
	domain := emailDomains[f.rng.Intn(len(emailDomains))]
	return fmt.Sprintf("%s@%s", local, domain)
}

// PhoneNumber returns a Korean mobile-format number, e.g. "010-1234-5678".
func (f *koreanFaker) PhoneNumber() string {
	return fmt.Sprintf("010-%04d-%04d", f.rng.Intn(10000), f.rng.Intn(10000))
}

func randomAlpha(rng *rand.Rand, n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz"
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return string(buf)
}
