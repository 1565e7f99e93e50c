package rerank

import (
	"fmt"
	"strings"

	"github.com/lexbench/lex-bench/internal/trec"
)

// fewShotExamples is the static in-context demonstration block used in
// few-shot mode: curated (query, candidates, correct ranking) triples over
// Turkish legal text. Version-controlled content, never learned online.
const fewShotExamples = `--- EXAMPLE 1 ---
Query: "Hırsızlık suçunun cezası nedir?"

Documents:
[1] "TCK Madde 141: Zilyedinin rızası olmadan başkasına ait taşınır bir malı alan kimse cezalandırılır."
[2] "Borçlar Kanunu Madde 1: Sözleşme, tarafların iradelerini karşılıklı açıklamalarıyla kurulur."
[3] "TCK Madde 142: Nitelikli hırsızlık halleri şunlardır."

Ranking: [1] > [3] > [2]
-------------------------------------------------------------
--- EXAMPLE 2 ---
Query: "İşçi yıllık ücretli izne ne zaman hak kazanır?"

Documents:
[1] İşveren, işyerinde iş sağlığı ve güvenliği önlemlerini almakla yükümlüdür.
[2] İşçilere verilecek yıllık ücretli izin süresi, hizmet süresi bir yıldan beş yıla kadar olanlara on dört günden az olamaz.
[3] İşyerinde işe başladığı günden itibaren, deneme süresi de içinde olmak üzere, en az bir yıl çalışmış olan işçilere yıllık ücretli izin verilir.

Ranking: [3] > [2] > [1]
-----------------`

// buildPrompt renders the rerank prompt for one query. Candidate texts are
// truncated to docCharBudget runes to keep the prompt inside the model's
// context window; the cut is deterministic.
func buildPrompt(query string, candidates []trec.Document, docCharBudget int, fewShot bool) string {
	var b strings.Builder

	if fewShot {
		b.WriteString("You are an expert Turkish Lawyer and Judge.\n")
		b.WriteString("Your task is to rank the provided documents based on their relevance to the user query.\n")
		b.WriteString("Use the logical reasoning of a legal expert.\n\n")
		b.WriteString(fewShotExamples)
		b.WriteString("\n\nNOW IT IS YOUR TURN:\n")
	} else {
		b.WriteString("You are an expert Turkish lawyer.\n")
		b.WriteString("Rank these documents by relevance to the query.\n")
	}

	fmt.Fprintf(&b, "Query: %s\n\nDocuments:\n", query)
	for i, doc := range candidates {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, truncateRunes(doc.Text, docCharBudget))
	}

	b.WriteString("Output ONLY the ranking as a list of numbers: [1] > [2] ...\nRanking:")
	return b.String()
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
