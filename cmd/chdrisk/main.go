// chdrisk はフラミンガム心臓研究データでCHDリスク分類器を比較するCLIです。
//
// Usage:
//
//	chdrisk run --data framingham.csv --out plots
//	chdrisk run --synthetic 2000 --models knn,random_forest
//	chdrisk config > chdrisk.yaml
//	chdrisk run --config chdrisk.yaml
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
