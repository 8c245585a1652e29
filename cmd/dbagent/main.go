// Command dbagent serves LLM agents bound to SQL databases and offers a few
// local agent front ends.
//
// Examples:
//
//	export OPENAI_API_KEY=...
//	dbagent serve --addr :8000
//	dbagent ask --db sqlite:///shop.db "How many orders shipped last week?"
//	dbagent csv --file data/movies.csv
//	dbagent assistant "What is my horoscope? I am a Taurus."
package main

func main() {
	Execute()
}
